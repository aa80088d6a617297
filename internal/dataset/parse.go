package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ParseOptions controls how a delimited file is read.
type ParseOptions struct {
	// Delimiter for fields. If 0, uses '\t' for .tsv names and ',' otherwise.
	Delimiter rune
	// MaxRows limits data rows kept; 0 means unlimited.
	MaxRows int
	// Numeric parsing locale. Both zero means plain Go number syntax.
	DecimalSeparator   rune
	ThousandsSeparator rune
}

// missingTokens are read as missing cells, matching common CSV tooling defaults.
var missingTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

var timeLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
}

// ParseFile opens path and parses it as a delimited table.
func ParseFile(path string, opt ParseOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return Parse(filepath.Base(path), f, opt)
}

// Parse reads a header row followed by data rows and infers a type per column.
// Any structural problem is reported as ErrParse.
func Parse(name string, r io.Reader, opt ParseOptions) (*Dataset, error) {
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(name)
	}
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: no columns to parse from file", ErrParse)
		}
		return nil, fmt.Errorf("%w: read header: %v", ErrParse, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if err := checkUTF8(header, 1); err != nil {
		return nil, err
	}
	names := uniqueNames(header)
	ncol := len(names)

	raw := make([][]string, ncol)
	ds := &Dataset{name: name, index: make(map[string]int, ncol)}
	line := 1
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: read row %d: %v", ErrParse, line+1, err)
		}
		line++
		if len(rec) > ncol {
			return nil, fmt.Errorf("%w: expected %d fields in line %d, saw %d", ErrParse, ncol, line, len(rec))
		}
		if err := checkUTF8(rec, line); err != nil {
			return nil, err
		}
		if opt.MaxRows > 0 && ds.rows >= opt.MaxRows {
			continue
		}
		for j := 0; j < ncol; j++ {
			v := ""
			if j < len(rec) {
				v = rec[j]
			}
			raw[j] = append(raw[j], v)
		}
		ds.rows++
	}
	if total := line - 1; total > ds.rows {
		ds.warnings = append(ds.warnings, fmt.Sprintf("processed only %d/%d rows due to MaxRows", ds.rows, total))
	}

	ds.columns = make([]*Column, ncol)
	for j, n := range names {
		vals := raw[j]
		if vals == nil {
			vals = []string{}
		}
		ds.columns[j] = buildColumn(n, vals, opt)
		ds.index[n] = j
	}
	return ds, nil
}

func checkUTF8(rec []string, line int) error {
	for _, v := range rec {
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: invalid UTF-8 in line %d", ErrParse, line)
		}
	}
	return nil
}

// uniqueNames fills blank names and suffixes repeats with .1, .2, ...
func uniqueNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		n := strings.TrimSpace(h)
		if n == "" {
			n = fmt.Sprintf("Unnamed: %d", i)
		}
		if seen[n] {
			base := n
			for k := 1; seen[n]; k++ {
				n = fmt.Sprintf("%s.%d", base, k)
			}
		}
		seen[n] = true
		out[i] = n
	}
	return out
}

func buildColumn(name string, vals []string, opt ParseOptions) *Column {
	c := &Column{Name: name, raw: vals, missing: make([]bool, len(vals))}
	present := 0
	for i, v := range vals {
		if isMissing(v) {
			c.missing[i] = true
			continue
		}
		present++
	}
	c.Kind = KindText
	if present == 0 {
		return c
	}
	switch {
	case c.tryBool():
	case c.tryInt(opt):
	case c.tryFloat(opt):
	case c.tryTime():
	}
	return c
}

func (c *Column) tryBool() bool {
	bools := make([]bool, len(c.raw))
	for i, v := range c.raw {
		if c.missing[i] {
			continue
		}
		switch strings.ToLower(trimCell(v)) {
		case "true":
			bools[i] = true
		case "false":
		default:
			return false
		}
	}
	c.Kind, c.bools = KindBoolean, bools
	return true
}

func (c *Column) tryInt(opt ParseOptions) bool {
	ints := make([]int64, len(c.raw))
	floats := make([]float64, len(c.raw))
	for i, v := range c.raw {
		if c.missing[i] {
			continue
		}
		n, err := strconv.ParseInt(normalizeNumber(v, opt), 10, 64)
		if err != nil {
			return false
		}
		ints[i], floats[i] = n, float64(n)
	}
	c.Kind, c.ints, c.floats = KindInteger, ints, floats
	return true
}

func (c *Column) tryFloat(opt ParseOptions) bool {
	floats := make([]float64, len(c.raw))
	for i, v := range c.raw {
		if c.missing[i] {
			continue
		}
		f, ok := parseNumeric(v, opt)
		if !ok {
			return false
		}
		floats[i] = f
	}
	c.Kind, c.floats = KindFloat, floats
	return true
}

func (c *Column) tryTime() bool {
	times := make([]time.Time, len(c.raw))
	for i, v := range c.raw {
		if c.missing[i] {
			continue
		}
		t, ok := parseTimeMaybe(trimCell(v))
		if !ok {
			return false
		}
		times[i] = t
	}
	c.Kind, c.times = KindDatetime, times
	return true
}

func isMissing(v string) bool {
	_, ok := missingTokens[trimCell(v)]
	return ok
}

func trimCell(v string) string { return strings.TrimSpace(v) }

func sniffDelimiter(name string) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	return ','
}

func parseTimeMaybe(s string) (time.Time, bool) {
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeNumber strips locale separators so strconv can parse the token.
func normalizeNumber(s string, opt ParseOptions) string {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00A0", " "))
	dec, thou := opt.DecimalSeparator, opt.ThousandsSeparator
	if dec == 0 && thou == 0 {
		return raw
	}
	if dec == 0 {
		dec = '.'
	}
	if thou != 0 && thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	return raw
}

func parseNumeric(s string, opt ParseOptions) (float64, bool) {
	f, err := strconv.ParseFloat(normalizeNumber(s, opt), 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
