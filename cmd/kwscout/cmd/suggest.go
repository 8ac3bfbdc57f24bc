package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FranksOps/kwscout/internal/config"
	"github.com/FranksOps/kwscout/internal/suggest"
)

var (
	suggestOutput   string
	suggestNoExpand bool
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <seed>",
	Short: "Collect keyword candidates for a seed keyword",
	Long: `Search the seed and the seed combined with each modifier (おすすめ, 比較,
やり方, ...) and collect the related searches the provider shows with each
listing. Every query is one billable call and counts against --max-calls.

The result is a keyword file with one keyword per line that run accepts:

  kwscout suggest "エアコン 掃除" -o candidates.txt
  kwscout run --input candidates.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSuggest,
}

func init() {
	d := config.Default()
	f := suggestCmd.Flags()
	f.StringVarP(&suggestOutput, "output", "o", "", "keyword file (default stdout)")
	f.BoolVar(&suggestNoExpand, "no-expand", false, "query the seed only, without modifiers")
	f.StringP("provider", "p", d.Provider, "metrics provider (serpapi, dataforseo, yahoo)")
	f.Int("max-calls", d.Budget.MaxCalls, "maximum billable provider calls")
	f.Int("concurrency", d.Concurrency, "queries in flight")
	f.StringSlice("modifiers", d.Suggest.Modifiers, "words combined with the seed, one query each")
	f.Int("limit", d.Suggest.Limit, "maximum number of suggestions")

	bindFlags(f, map[string]string{
		"suggest.modifiers": "modifiers",
		"suggest.limit":     "limit",
	})
}

func runSuggest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := applySuggestFlags(cmd, cfg); err != nil {
		return err
	}

	p, err := cfg.NewProvider(logger)
	if err != nil {
		return err
	}
	sc := suggest.Config{
		Modifiers:   cfg.Suggest.Modifiers,
		Budget:      cfg.LedgerBudget(),
		Limit:       cfg.Suggest.Limit,
		Concurrency: cfg.Concurrency,
	}
	if suggestNoExpand {
		sc.Modifiers = nil
	}

	res, runErr := suggest.New(p, sc, logger).Collect(ctx, strings.Join(args, " "))
	if res != nil && len(res.Keywords) > 0 {
		if err := writeSuggestions(cmd.OutOrStdout(), suggestOutput, res); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if len(res.Keywords) == 0 {
		logger.Warn("no suggestions found", "seed", res.Seed, "failed", res.Failed, "skipped", res.Skipped)
	}
	return nil
}

// applySuggestFlags lets flags shared with run override the loaded config.
// Their viper keys are bound to run's flags.
func applySuggestFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	var err error
	if f.Changed("provider") {
		if c.Provider, err = f.GetString("provider"); err != nil {
			return err
		}
	}
	if f.Changed("max-calls") {
		if c.Budget.MaxCalls, err = f.GetInt("max-calls"); err != nil {
			return err
		}
	}
	if f.Changed("concurrency") {
		if c.Concurrency, err = f.GetInt("concurrency"); err != nil {
			return err
		}
	}
	return c.Validate()
}

func writeSuggestions(stdout io.Writer, path string, res *suggest.Result) error {
	if path == "" {
		return suggest.WriteList(stdout, res)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create keyword file: %w", err)
	}
	if err := suggest.WriteList(f, res); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close keyword file: %w", err)
	}
	logger.Info("keyword file written", "path", path, "keywords", len(res.Keywords))
	return nil
}
