// Command clarityreplay records Clarity LIMS API traffic into fixtures and
// serves those fixtures back as a stand-in Clarity server.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Credentials usually live in a local .env next to the fixtures.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
