package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
	"github.com/kailas-cloud/clarityreplay/internal/repository/exchange"
)

func newSearchesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "searches",
		Short: "List the recorded searches and their parameters",
		Long: `Search recordings are named by a hash of their parameters. This prints what
each one was searched for, to tell them apart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			found, err := exchange.New(store).Searches(cmd.Context())
			if err != nil {
				if len(found) == 0 {
					return err
				}
				logger.Warn("Some searches could not be read", zap.Error(err))
			}
			return printSearches(cmd.OutOrStdout(), found)
		},
	}
}

func printSearches(out io.Writer, found map[string]*search.Search) error {
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tKIND\tRESULTS\tTERMS")
	for _, name := range names {
		s := found[name]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", name, s.Terms.Kind().Name(), len(s.Results), s.Terms)
	}
	return tw.Flush()
}
