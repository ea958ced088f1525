package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/clarityreplay/internal/repository/catalog"
	"github.com/kailas-cloud/clarityreplay/internal/repository/exchange"
)

func newCatalogCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "catalog [QUERY]",
		Short: "Search recorded entities by name, id or kind",
		Long: `Indexes the recorded entities and runs a query string against them.

  clarityreplay catalog GAO9862
  clarityreplay catalog 'kind:sample name:pool'
  clarityreplay catalog            # everything`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			store, err := openStore(cmd.Context(), cfg.Store, false)
			if err != nil {
				return err
			}
			defer store.Close()

			c, err := catalog.Build(cmd.Context(), exchange.New(store), logger)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			hits, err := c.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return printHits(cmd.OutOrStdout(), hits)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of hits")
	return cmd
}

func printHits(out io.Writer, hits []catalog.Hit) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tKIND\tID\tNAME")
	for _, h := range hits {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.File, h.Kind, h.ID, h.Name)
	}
	return tw.Flush()
}
