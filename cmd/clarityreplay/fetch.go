package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/lims"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
	"github.com/kailas-cloud/clarityreplay/internal/metrics"
	"github.com/kailas-cloud/clarityreplay/internal/repository/exchange"
	"github.com/kailas-cloud/clarityreplay/internal/usecase/record"
)

type fetchOptions struct {
	kind  string
	ids   []string
	find  []string
	all   bool
	limit int
}

func newFetchCmd(opts *globalOptions) *cobra.Command {
	fo := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Record entities from a live Clarity server into the store",
		Long: `Fetches entities of one kind from clarity.server and records them, along with
the list or search that found them.

  clarityreplay fetch --kind sample --id GAO9862A146 --id GAO9862A147
  clarityreplay fetch --kind sample --find projectlimsid=GAO9862
  clarityreplay fetch --kind lab --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg.Store, true)
			if err != nil {
				return err
			}
			defer store.Close()

			client, err := newClarityClient(cfg.Clarity, logger)
			if err != nil {
				return err
			}
			metrics.RegisterReplayMetrics()

			rec := record.New(client, exchange.New(store), logger)
			return runFetch(ctx, rec, fo, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVar(&fo.kind, "kind", "", "entity kind, e.g. sample, artifact, lab")
	cmd.Flags().StringArrayVar(&fo.ids, "id", nil, "limsid to fetch (repeatable)")
	cmd.Flags().StringArrayVar(&fo.find, "find", nil, "search term name=value (repeatable)")
	cmd.Flags().BoolVar(&fo.all, "all", false, "list the kind and fetch every entity")
	cmd.Flags().IntVar(&fo.limit, "limit", 0, "with --all, fetch only the first N entities of the list")
	_ = cmd.MarkFlagRequired("kind")
	cmd.MarkFlagsOneRequired("id", "find", "all")
	cmd.MarkFlagsMutuallyExclusive("id", "find", "all")
	return cmd
}

func runFetch(ctx context.Context, api lims.API, fo *fetchOptions, out io.Writer, logger *zap.Logger) error {
	k, err := kind.Parse(fo.kind)
	if err != nil {
		return err
	}

	var links []entity.Link
	switch {
	case len(fo.ids) > 0:
		for _, id := range fo.ids {
			links = append(links, entity.NewLink(k, "", id))
		}
	case len(fo.find) > 0:
		params, err := parseTerms(fo.find)
		if err != nil {
			return err
		}
		links, err = api.Find(ctx, k, params)
		if err != nil {
			return fmt.Errorf("find %s: %w", k.Name(), err)
		}
		fmt.Fprintf(out, "search %s matched %d\n", search.NewTerms(k, params), len(links))
	default:
		if fo.limit > 0 {
			links, err = api.ListSome(ctx, k, 0, fo.limit)
		} else {
			links, err = api.ListAll(ctx, k)
		}
		if err != nil {
			return fmt.Errorf("list %s: %w", k.Batch(), err)
		}
		fmt.Fprintf(out, "%s listed %d\n", k.Batch(), len(links))
	}

	if len(links) == 0 {
		return nil
	}
	es, err := api.LoadAll(ctx, k, links)
	if err != nil {
		return fmt.Errorf("load %s: %w", k.Name(), err)
	}
	for _, e := range es {
		id, err := e.ID()
		if err != nil {
			logger.Warn("Fetched entity without identifier", zap.String("kind", k.Name()))
			continue
		}
		fmt.Fprintln(out, exchange.EntityName(k, id))
	}
	return nil
}

// parseTerms turns name=value arguments into search parameters. Repeated
// names collect several values.
func parseTerms(args []string) (search.Params, error) {
	params := make(search.Params, len(args))
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, errors.New("search terms must look like name=value, got " + a)
		}
		params[name] = append(params[name], value)
	}
	return params, nil
}
