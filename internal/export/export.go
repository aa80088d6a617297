// Package export serializes a dataset for download.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/datalens/internal/dataset"
)

// ErrUnsupportedFormat is returned for unknown formats or when no spreadsheet writer is configured.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format names an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// SheetName is the single worksheet written to spreadsheet exports.
const SheetName = "Data"

// TimeLayout is used for datetime cells in JSON and spreadsheet output.
const TimeLayout = "2006-01-02T15:04:05Z07:00"

// ParseFormat maps a case-insensitive name to a Format. "excel" is accepted for xlsx.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Payload is an encoded export ready to be written or downloaded.
type Payload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SpreadsheetWriter encodes a header and typed rows as a workbook with one sheet.
type SpreadsheetWriter interface {
	WriteSheet(sheet string, header []string, rows [][]any) ([]byte, error)
}

// Serializer produces CSV, JSON and, when Spreadsheet is set, xlsx payloads.
type Serializer struct {
	Spreadsheet SpreadsheetWriter
}

// NewSerializer returns a Serializer with the excelize spreadsheet writer.
func NewSerializer() *Serializer {
	return &Serializer{Spreadsheet: ExcelWriter{}}
}

// Formats lists the formats this Serializer can produce.
func (s *Serializer) Formats() []Format {
	out := []Format{FormatCSV, FormatJSON}
	if s.Spreadsheet != nil {
		out = append(out, FormatXLSX)
	}
	return out
}

// Export encodes ds in format f.
func (s *Serializer) Export(ds *dataset.Dataset, f Format) (*Payload, error) {
	p := &Payload{Filename: Filename(ds.Name(), f)}
	var err error
	switch f {
	case FormatCSV:
		p.ContentType = "text/csv; charset=utf-8"
		p.Data, err = CSV(ds)
	case FormatJSON:
		p.ContentType = "application/json"
		p.Data, err = JSONRecords(ds)
	case FormatXLSX:
		if s.Spreadsheet == nil {
			return nil, fmt.Errorf("%w: no spreadsheet writer available (available: %s)", ErrUnsupportedFormat, joinFormats(s.Formats()))
		}
		p.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		p.Data, err = s.Spreadsheet.WriteSheet(SheetName, ds.Header(), typedRows(ds))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", f, err)
	}
	return p, nil
}

func joinFormats(fs []Format) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

// Filename returns "<stem>_processed.<ext>" for the source name.
func Filename(name string, f Format) string {
	base := filepath.Base(strings.TrimSpace(name))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "dataset"
	}
	return fmt.Sprintf("%s_processed.%s", stem, f)
}

// CSV writes a header row and the raw cell text of every row. Missing cells are empty.
func CSV(ds *dataset.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ds.Header()); err != nil {
		return nil, err
	}
	cols := ds.Columns()
	row := make([]string, len(cols))
	for r := 0; r < ds.Rows(); r++ {
		for j, c := range cols {
			row[j] = ""
			if !c.IsMissing(r) {
				row[j] = c.Raw(r)
			}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JSONRecords writes an array with one object per row. Keys follow column
// order; missing and non-finite values are null.
func JSONRecords(ds *dataset.Dataset) ([]byte, error) {
	cols := ds.Columns()
	keys := make([][]byte, len(cols))
	for j, c := range cols {
		k, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		keys[j] = k
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for r := 0; r < ds.Rows(); r++ {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, c := range cols {
			if j > 0 {
				buf.WriteByte(',')
			}
			buf.Write(keys[j])
			buf.WriteByte(':')
			v, err := jsonValue(c.Value(r))
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r, c.Name, err)
			}
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func jsonValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte("null"), nil
	case int64:
		return []byte(strconv.FormatInt(x, 10)), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(x)
	case bool:
		return []byte(strconv.FormatBool(x)), nil
	case time.Time:
		return json.Marshal(x.Format(TimeLayout))
	default:
		return json.Marshal(x)
	}
}

// typedRows converts ds into spreadsheet cell values.
func typedRows(ds *dataset.Dataset) [][]any {
	cols := ds.Columns()
	rows := make([][]any, ds.Rows())
	for r := range rows {
		row := make([]any, len(cols))
		for j, c := range cols {
			switch v := c.Value(r).(type) {
			case float64:
				if math.IsNaN(v) || math.IsInf(v, 0) {
					row[j] = nil
				} else {
					row[j] = v
				}
			case time.Time:
				row[j] = v.Format(TimeLayout)
			default:
				row[j] = v
			}
		}
		rows[r] = row
	}
	return rows
}
