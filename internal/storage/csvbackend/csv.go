package csvbackend

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/FranksOps/kwscout/internal/serp"
	"github.com/FranksOps/kwscout/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"keyword",
	"source",
	"allintitle_count",
	"intitle_count",
	"competitors_json",
	"malformed_json",
	"fetched_at",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: open: %w", err)
	}

	// Check if file is empty to write headers
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: stat: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: header: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, result *serp.MetricsResult) error {
	if err := storage.Prepare(result); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	competitors, err := json.Marshal(result.Competitors)
	if err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	malformed, err := json.Marshal(result.Malformed)
	if err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}

	record := []string{
		result.ID,
		result.Keyword,
		string(result.Source),
		result.AllInTitle.String(),
		result.InTitle.String(),
		string(competitors),
		string(malformed),
		result.FetchedAt.UTC().Format(time.RFC3339Nano),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Ensure we're at the end of the file for appending (just in case)
	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csvbackend: seek: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("csvbackend: write: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: write: %w", err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*serp.MetricsResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Seek to the beginning of the file to read all entries
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: seek: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = -1

	// Read headers
	_, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return []*serp.MetricsResult{}, nil
		}
		return nil, fmt.Errorf("csvbackend: header: %w", err)
	}

	var allFiltered []*serp.MetricsResult

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue // skip rows the csv reader cannot split
			}
			return nil, fmt.Errorf("csvbackend: read: %w", err)
		}

		res, ok := parseRecord(record)
		if !ok || !storage.Match(res, filter) {
			continue
		}
		allFiltered = append(allFiltered, res)
	}

	// Order by fetched_at DESC; rows are appended in write order so a stable
	// sort keeps ties newest-written first after the reverse.
	slices.Reverse(allFiltered)
	slices.SortStableFunc(allFiltered, func(a, b *serp.MetricsResult) int {
		return b.FetchedAt.Compare(a.FetchedAt)
	})

	return storage.Page(allFiltered, filter), nil
}

// parseRecord decodes one row. Any unparsable field discards the row.
func parseRecord(record []string) (*serp.MetricsResult, bool) {
	if len(record) != len(headers) {
		return nil, false
	}
	allintitle, err := serp.ParseCount(record[3])
	if err != nil {
		return nil, false
	}
	intitle, err := serp.ParseCount(record[4])
	if err != nil {
		return nil, false
	}
	fetchedAt, err := time.Parse(time.RFC3339Nano, record[7])
	if err != nil {
		return nil, false
	}
	res := &serp.MetricsResult{
		ID:         record[0],
		Keyword:    record[1],
		Source:     serp.Source(record[2]),
		AllInTitle: allintitle,
		InTitle:    intitle,
		FetchedAt:  fetchedAt,
	}
	if json.Unmarshal([]byte(record[5]), &res.Competitors) != nil ||
		json.Unmarshal([]byte(record[6]), &res.Malformed) != nil {
		return nil, false
	}
	if storage.Validate(res) != nil {
		return nil, false
	}
	return res, true
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
