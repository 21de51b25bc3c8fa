package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rich1707/Customer-Churn/agent/internal/clean"
	"github.com/rich1707/Customer-Churn/agent/internal/compute"
	"github.com/rich1707/Customer-Churn/agent/internal/config"
	"github.com/rich1707/Customer-Churn/agent/internal/ingest"
	"github.com/rich1707/Customer-Churn/agent/internal/metrics"
)

// app carries the global flags and the metrics registry of one invocation.
type app struct {
	logLevel    string
	envFile     string
	showMetrics bool
	workers     int

	m *metrics.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{m: metrics.New(nil)}

	root := &cobra.Command{
		Use:   "churnctl",
		Short: "Derive, explore and evaluate customer churn features",
		Long: `churnctl loads a customer table (CSV, XLSX or an http(s) URL), cleans it the
way the agent does and derives diff_charge and able_to_churn for every row.

Examples:
  churnctl derive --in telco.xlsx --out derived.csv
  churnctl explore --in telco.csv --by tenure_band
  churnctl evaluate --in telco.csv --test-frac 0.3 --seed 42`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
				return fmt.Errorf("--log-level: %w", err)
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

			if a.envFile != "" {
				if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("env file %s: %w", a.envFile, err)
				}
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if !a.showMetrics {
				return nil
			}
			return metrics.WriteText(cmd.ErrOrStderr(), a.m.Registry())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.logLevel, "log-level", "warn", "debug | info | warn | error")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file with source credentials")
	pf.BoolVar(&a.showMetrics, "metrics", false, "print the Prometheus metrics of the run to stderr")
	pf.IntVar(&a.workers, "workers", config.DefaultWorkers, "goroutines deriving rows")

	root.AddCommand(newDeriveCmd(a), newExploreCmd(a), newEvaluateCmd(a))
	return root
}

// input describes the table a command reads.
type input struct {
	path   string
	sheet  string
	strict bool
	keep   bool // keep the default leakage columns as attributes
}

func (in *input) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&in.path, "in", "", "input file (.csv, .xlsx) or http(s) URL")
	f.StringVar(&in.sheet, "sheet", "", "worksheet of an .xlsx input (default: active sheet)")
	f.BoolVar(&in.strict, "strict", false, "fail on the first invalid row instead of skipping it")
	f.BoolVar(&in.keep, "keep-columns", false, "do not drop the leakage and geography columns")
	_ = cmd.MarkFlagRequired("in")
}

// source maps the input onto an agent source definition.
func (in *input) source() (config.Source, error) {
	src := config.Source{Path: in.path, Sheet: in.sheet}
	base := filepath.Base(in.path)
	src.ID = strings.TrimSuffix(base, filepath.Ext(base))

	switch ext := strings.ToLower(filepath.Ext(in.path)); {
	case strings.HasPrefix(in.path, "http://"), strings.HasPrefix(in.path, "https://"):
		src.Type, src.Endpoint, src.Path = "http", in.path, ""
	case ext == ".csv":
		src.Type = "csv"
	case ext == ".xlsx", ext == ".xlsm":
		src.Type = "xlsx"
	default:
		return src, fmt.Errorf("%w: cannot tell the format of %q", ingest.ErrUnsupported, in.path)
	}
	return src, nil
}

// derive loads, cleans and derives the input, recording the run in a.m.
func (a *app) derive(ctx context.Context, in input) (*compute.Result, error) {
	src, err := in.source()
	if err != nil {
		return nil, err
	}
	loader, err := ingest.New(src)
	if err != nil {
		return nil, err
	}
	table, err := loader.Load(ctx)
	if err != nil {
		a.m.LoadFailed(src.ID)
		return nil, err
	}

	cc := config.CleanConfig{Strict: in.strict}
	if !in.keep {
		cc.DropColumns = config.DefaultDropColumns
	}
	customers, rep, err := clean.New(cc).Apply(table)
	if err != nil {
		a.m.LoadFailed(src.ID)
		return nil, err
	}

	res, err := compute.NewEngine(a.workers).Process(ctx, compute.Job{
		SourceID:      src.ID,
		SourceType:    src.Type,
		Customers:     customers,
		Rejected:      rep.Rejected,
		RejectReasons: rep.Reasons,
		Imputed:       rep.Imputed,
	}, table.LoadedAt)
	if err != nil {
		return nil, err
	}
	a.m.ObserveBatch(src.ID, res.Stats, res.Duration)
	slog.Info("derived",
		"source", src.ID, "rows", res.Stats.Rows, "rejected", res.Stats.Rejected, "imputed", res.Stats.Imputed)
	return res, nil
}
