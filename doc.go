// Package clarityreplay provides a Clarity LIMS API client that can record
// what a real server returns and replay it later without a server.
//
// A client runs in one of three modes:
//   - Live talks to the server and records nothing.
//   - Record talks to the server and saves every read answer.
//   - Playback answers reads from the recordings alone.
//
// # Recording fixtures
//
//	client, _ := clarityreplay.New(
//	    clarityreplay.WithServer("https://lims.example.org", user, pass),
//	    clarityreplay.WithRecordings("testdata/clarity"),
//	    clarityreplay.WithMode(clarityreplay.ModeRecord),
//	)
//	s, _ := client.Load(ctx, clarityreplay.Sample, "GAO9862A146")
//
// # Playing them back in a test
//
//	client, _ := clarityreplay.New(
//	    clarityreplay.WithRecordings("testdata/clarity"),
//	    clarityreplay.WithStrict(),
//	)
//	s, _ := client.Load(ctx, clarityreplay.Sample, "GAO9862A146")
//
// Reads with nothing recorded fail with an error matching ErrNoRecording.
// Writes in playback are dropped, written to an updates directory
// (WithUpdates), or refused with ErrWriteBlocked (WithStrict).
//
// Handler exposes the client as a Clarity-shaped HTTP server so code that
// only speaks HTTP can be pointed at the recordings too.
package clarityreplay
