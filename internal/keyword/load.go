package keyword

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// HeaderColumn is the keyword column name in Rakko keyword exports.
const HeaderColumn = "キーワード"

// LoadFile reads keywords from path. See Load.
func LoadFile(path string) ([]Keyword, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("keyword: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a keyword list. Two shapes are accepted: a plain list with one
// keyword per line ('#' comments and blank lines skipped), or a tab or
// comma separated export whose header row has a キーワード column. The
// encoding is sniffed: UTF-16 with BOM, UTF-8 with or without BOM, and
// Shift_JIS when the bytes are not valid UTF-8.
func Load(r io.Reader) ([]Keyword, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("keyword: %w", err)
	}
	text, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("keyword: decode: %w", err)
	}

	firstLine, _, _ := strings.Cut(text, "\n")
	if strings.Contains(firstLine, HeaderColumn) {
		return loadTable(text, firstLine)
	}
	return loadLines(text)
}

func decode(raw []byte) (string, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}), bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, raw)
		return string(out), err
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		return string(raw[3:]), nil
	case utf8.Valid(raw):
		return string(raw), nil
	}
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), raw)
	return string(out), err
}

func loadLines(text string) ([]Keyword, error) {
	var raws []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raws = append(raws, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("keyword: %w", err)
	}
	return Dedupe(raws), nil
}

func loadTable(text, header string) ([]Keyword, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = ','
	if strings.Contains(header, "\t") {
		cr.Comma = '\t'
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("keyword: header: %w", err)
	}
	col := -1
	for i, h := range head {
		if strings.Trim(strings.TrimSpace(h), `"`) == HeaderColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("keyword: no %s column in header", HeaderColumn)
	}

	var raws []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("keyword: %w", err)
		}
		if col >= len(rec) {
			continue
		}
		v := strings.TrimSpace(rec[col])
		if v == "" || v == HeaderColumn {
			continue
		}
		raws = append(raws, v)
	}
	return Dedupe(raws), nil
}
