package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rich1707/Customer-Churn/pkg/explore"
)

func newExploreCmd(a *app) *cobra.Command {
	var (
		in     input
		by     string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Summarise churn by contract, derived label, tenure band or attribute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.derive(cmd.Context(), in)
			if err != nil {
				return err
			}
			groups, err := explore.GroupBy(res.Records, by)
			if err != nil {
				return err
			}
			overview := explore.Overview(res.Records)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Overview explore.Totals  `json:"overview"`
					By       string          `json:"by"`
					Groups   []explore.Group `json:"groups"`
				}{overview, by, groups})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "records=%d labelled=%d churned=%d churn_rate=%.2f%%\n\n",
				overview.Records, overview.Labelled, overview.Churned, overview.ChurnRate)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "%s\tCOUNT\tCHURNED\tCHURN%%\tMEAN MONTHLY\tSTD MONTHLY\tMEAN TENURE\n", by)
			for _, g := range groups {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.1f\n",
					g.Key, g.Count, g.Churned, g.ChurnRate, g.MeanMonthly, g.StdMonthly, g.MeanTenure)
			}
			return tw.Flush()
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&by, "by", explore.KeyContract,
		"contract | diff_charge | able_to_churn | tenure_band | <attribute column>")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
