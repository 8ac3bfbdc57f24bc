package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/FranksOps/kwscout/internal/keyword"
	"github.com/FranksOps/kwscout/internal/serp"
	"github.com/FranksOps/kwscout/internal/storage"
)

var (
	listKeyword string
	listSource  string
	listSince   string
	listLimit   int
	listJSON    bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the result cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached metrics, newest first",
	RunE:  runCacheList,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	f := cacheListCmd.Flags()
	f.StringVar(&listKeyword, "keyword", "", "only this keyword")
	f.StringVar(&listSource, "source", "", "only this provider")
	f.StringVar(&listSince, "since", "", "only rows fetched at or after this date (2006-01-02 or RFC 3339)")
	f.IntVar(&listLimit, "limit", 50, "maximum rows (0 for all)")
	f.BoolVar(&listJSON, "json", false, "print rows as JSON")
}

func runCacheList(cmd *cobra.Command, _ []string) error {
	filter, err := listFilter(listKeyword, listSource, listSince, listLimit)
	if err != nil {
		return err
	}

	c, err := cfg.OpenCache(cmd.Context(), logger)
	if err != nil {
		return err
	}
	if c == nil {
		return errors.New("no cache configured: set --cache-backend and --cache-dsn")
	}
	defer c.Close()

	rows, err := c.List(cmd.Context(), filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEYWORD\tSOURCE\tALLINTITLE\tINTITLE\tFETCHED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Keyword, r.Source,
			humanCount(r.AllInTitle), humanCount(r.InTitle), humanize.Time(r.FetchedAt))
	}
	return tw.Flush()
}

func listFilter(kw, source, since string, limit int) (storage.Filter, error) {
	f := storage.Filter{Limit: limit}
	if kw != "" {
		f.Keyword = keyword.Normalize(kw).String()
	}
	if source != "" {
		src, err := serp.ParseSource(source)
		if err != nil {
			return f, err
		}
		f.Source = src
	}
	if since != "" {
		t, err := parseSince(since)
		if err != nil {
			return f, err
		}
		f.Since = &t
	}
	return f, nil
}

func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since %q: want 2006-01-02 or RFC 3339", raw)
	}
	return t, nil
}

func humanCount(c serp.Count) string {
	if c.IsInfinite() {
		return c.String()
	}
	return humanize.Comma(int64(c))
}
