// Package cmd provides the kwscout command line.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FranksOps/kwscout/internal/config"
	"github.com/FranksOps/kwscout/internal/serp"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	// exitAuth signals rejected provider credentials.
	exitAuth = 2
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kwscout",
	Short: "Qualify SEO keywords by title competition",
	Long: `kwscout counts how many pages carry a keyword in their title
(allintitle: and intitle:) through a search metrics provider and sorts the
keywords into GOLD, SILVER_ENTRY, SILVER_REVIEW and BRONZE tiers, spending at
most a fixed number of billable provider calls per run.

Examples:
  kwscout suggest "エアコン 掃除" --output candidates.txt
  kwscout run --input keywords.tsv --max-calls 200
  kwscout run --provider dataforseo --format csv --output report.csv "扇風機 おすすめ"
  kwscout cache list --cache-backend sqlite --cache-dsn kwscout.db --since 2026-10-01`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

func init() {
	d := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	pf.String("log-format", d.Log.Format, "log format (text, json)")
	pf.String("cache-backend", d.Cache.Backend, "result cache (none, sqlite, postgres, csv, json)")
	pf.String("cache-dsn", d.Cache.DSN, "cache file path or postgres connection string")

	bindFlags(pf, map[string]string{
		"log.level":     "log-level",
		"log.format":    "log-format",
		"cache.backend": "cache-backend",
		"cache.dsn":     "cache-dsn",
	})

	rootCmd.AddCommand(runCmd, suggestCmd, cacheCmd, versionCmd)
}

// bindFlags ties viper keys to flags so a set flag wins over file and
// environment values.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	l, err := c.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	slog.SetDefault(logger)
	return nil
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, serp.ErrAuth) {
			return exitAuth
		}
		return exitError
	}
	return exitOK
}
