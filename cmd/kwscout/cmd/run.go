package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/kwscout/internal/config"
	"github.com/FranksOps/kwscout/internal/keyword"
	"github.com/FranksOps/kwscout/internal/metrics"
	"github.com/FranksOps/kwscout/internal/pipeline"
	"github.com/FranksOps/kwscout/internal/plan"
	"github.com/FranksOps/kwscout/internal/report"
)

var inputFile string

var runCmd = &cobra.Command{
	Use:   "run [keyword...]",
	Short: "Qualify keywords and write a report",
	Long: `Fetch allintitle and intitle counts for every keyword, classify them
into tiers and write a report.

Keywords come from the arguments and from --input, which accepts one keyword
per line or a keyword tool export (TSV or CSV with a キーワード column, UTF-8,
UTF-16 or Shift_JIS). Duplicates are queried once.

Once --max-calls is spent the remaining keywords are reported as
BUDGET_EXHAUSTED. A rejected API key aborts the run with exit code 2 after
writing whatever was already processed.`,
	RunE: runRun,
}

func init() {
	d := config.Default()
	f := runCmd.Flags()
	f.StringVarP(&inputFile, "input", "i", "", "keyword file")
	f.StringP("provider", "p", d.Provider, "metrics provider (serpapi, dataforseo, yahoo)")
	f.String("plan", d.Plan, "query plan (optimized, naive)")
	f.Int("max-calls", d.Budget.MaxCalls, "maximum billable provider calls for this run")
	f.String("cost-per-call", d.Budget.CostPerCall, "price of one provider call")
	f.Int("concurrency", d.Concurrency, "keywords processed at once")
	f.Int64("allintitle-threshold", int64(d.Thresholds.AllInTitle), "largest allintitle count that still qualifies")
	f.Int64("intitle-threshold", int64(d.Thresholds.InTitle), "largest intitle count that still qualifies")
	f.StringP("format", "f", d.Report.Format, "report format (text, json, html, csv)")
	f.StringP("output", "o", d.Report.Output, "report file (default stdout)")
	f.Duration("cache-ttl", d.Cache.TTL, "cache freshness window (0 means same calendar day)")
	f.String("proxies", d.HTTP.ProxiesFile, "file with one proxy URL per line")
	f.Float64("rps", d.Rate.RequestsPerSecond, "provider requests per second (0 disables pacing)")
	f.Int("metrics-port", d.Metrics.Port, "serve Prometheus metrics on this port (0 disables)")

	bindFlags(f, map[string]string{
		"provider":                 "provider",
		"plan":                     "plan",
		"budget.max_calls":         "max-calls",
		"budget.cost_per_call":     "cost-per-call",
		"concurrency":              "concurrency",
		"thresholds.allintitle":    "allintitle-threshold",
		"thresholds.intitle":       "intitle-threshold",
		"report.format":            "format",
		"report.output":            "output",
		"cache.ttl":                "cache-ttl",
		"http.proxies_file":        "proxies",
		"rate.requests_per_second": "rps",
		"metrics.port":             "metrics-port",
	})
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kws, err := collectKeywords(args, inputFile)
	if err != nil {
		return err
	}

	p, err := cfg.NewProvider(logger)
	if err != nil {
		return err
	}
	c, err := cfg.OpenCache(ctx, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.Metrics.Port > 0 {
		srv := metrics.Start(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	strategy, err := plan.ParseStrategy(cfg.Plan)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return err
	}

	pl := pipeline.New(p, c, pipeline.Config{
		Strategy:    strategy,
		Thresholds:  cfg.Thresholds,
		Budget:      cfg.LedgerBudget(),
		Concurrency: cfg.Concurrency,
	}, logger)

	rep, runErr := pl.Run(ctx, kws)
	if rep != nil {
		if err := writeReport(cmd.OutOrStdout(), cfg.Report.Output, format, rep); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

// collectKeywords merges positional keywords with the input file.
func collectKeywords(args []string, path string) ([]string, error) {
	kws := append([]string(nil), args...)
	if path != "" {
		loaded, err := keyword.LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, k := range loaded {
			kws = append(kws, k.String())
		}
	}
	if len(kws) == 0 {
		return nil, errors.New("no keywords: pass them as arguments or with --input")
	}
	return kws, nil
}

func writeReport(stdout io.Writer, path string, format report.Format, rep *report.Report) error {
	if path == "" {
		return report.Write(stdout, format, rep)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.Write(f, format, rep); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	logger.Info("report written", "path", path, "format", format)
	return nil
}
