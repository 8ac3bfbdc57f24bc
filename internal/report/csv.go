package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/FranksOps/kwscout/internal/serp"
)

// csvHeader is the column order of WriteCSV.
var csvHeader = []string{
	"keyword",
	"status",
	"tier",
	"allintitle",
	"intitle",
	"weak_competitors",
	"reason",
	"error_kind",
	"cached",
}

// WriteCSV writes one row per entry in input order. The output starts with a
// UTF-8 BOM so spreadsheet tools detect the encoding of Japanese keywords.
func WriteCSV(w io.Writer, r *Report) error {
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return fmt.Errorf("report: csv: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("report: csv: %w", err)
	}
	for _, e := range r.Entries {
		row := []string{
			e.Keyword,
			string(e.Status),
			string(e.Tier),
			csvCount(e.AllInTitle),
			csvCount(e.InTitle),
			competitors(e.Competitors),
			e.Reason,
			e.ErrorKind,
			strconv.FormatBool(e.Cached),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("report: csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: csv: %w", err)
	}
	return nil
}

func csvCount(c *serp.Count) string {
	if c == nil {
		return ""
	}
	return c.String()
}
