package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newDeriveCmd(a *app) *cobra.Command {
	var (
		in     input
		out    string
		format string
	)
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Clean a customer table and append diff_charge and able_to_churn",
		Long: `Writes every kept row with the two derived columns. The output format follows
--format, or the extension of --out (.csv, .xlsx, .json); without --out the
table is written to stdout as CSV.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := outputFormat(format, out)
			if err != nil {
				return err
			}
			res, err := a.derive(cmd.Context(), in)
			if err != nil {
				return err
			}

			if f == "xlsx" {
				if out == "" {
					return fmt.Errorf("--format xlsx needs --out")
				}
				return writeXLSX(out, res.Records)
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer file.Close()
				w = file
			}
			if f == "json" {
				return writeJSON(w, res.Records)
			}
			return writeCSV(w, res.Records)
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "", "csv | xlsx | json")
	return cmd
}

func outputFormat(format, out string) (string, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
		if format == "" {
			format = "csv"
		}
	}
	switch format {
	case "csv", "xlsx", "json":
		return format, nil
	}
	return "", fmt.Errorf("unknown output format %q: want csv|xlsx|json", format)
}
