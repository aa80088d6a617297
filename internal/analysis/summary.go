package analysis

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/datalens/internal/dataset"
)

const (
	// HeadRows is the number of preview rows carried in a Summary.
	HeadRows = 5
	// OutlierThreshold is the robust z-score above which a value counts as an outlier.
	OutlierThreshold = 3.5
	// outlierMinValues is the smallest sample for which outliers are evaluated.
	outlierMinValues = 8
)

// Summary is the structured overview of one dataset.
type Summary struct {
	Name         string          `json:"name"`
	Rows         int             `json:"rows"`
	Columns      int             `json:"columns"`
	MemoryBytes  int64           `json:"memory_bytes"`
	Memory       string          `json:"memory"`
	Cols         []ColumnSummary `json:"column_summaries"`
	TotalMissing int             `json:"total_missing"`
	Duplicates   int             `json:"duplicate_rows"`
	Header       []string        `json:"header"`
	Head         [][]string      `json:"head"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// ColumnSummary captures type, missingness and numeric statistics per column.
type ColumnSummary struct {
	Name         string        `json:"name"`
	Kind         dataset.Kind  `json:"type"`
	Missing      int           `json:"missing"`
	MissingPct   float64       `json:"missing_pct"`
	MissingLabel string        `json:"missing_label"`
	Numeric      *NumericStats `json:"numeric,omitempty"`
	NonFinite    int           `json:"non_finite,omitempty"`
	Outliers     *OutlierStats `json:"outliers,omitempty"`
}

// NumericStats holds two-decimal statistics over the finite, non-missing values of a column.
type NumericStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// OutlierStats reports values whose robust z-score exceeds Threshold.
type OutlierStats struct {
	Count     int     `json:"count"`
	MaxAbsZ   float64 `json:"max_abs_z"`
	Threshold float64 `json:"threshold"`
}

// Summarize computes the Summary of ds. It never fails.
func Summarize(ds *dataset.Dataset) *Summary {
	s := &Summary{
		Name:     ds.Name(),
		Rows:     ds.Rows(),
		Columns:  len(ds.Columns()),
		Header:   ds.Header(),
		Head:     ds.Head(HeadRows),
		Warnings: ds.Warnings(),
	}
	s.MemoryBytes = MemoryFootprint(ds)
	s.Memory = FormatBytes(float64(s.MemoryBytes))
	s.Cols = make([]ColumnSummary, 0, len(ds.Columns()))
	for _, c := range ds.Columns() {
		cs := ColumnSummary{Name: c.Name, Kind: c.Kind, Missing: c.Missing()}
		if s.Rows > 0 {
			cs.MissingPct = round2(float64(cs.Missing) / float64(s.Rows) * 100)
		}
		cs.MissingLabel = percentLabel(cs.MissingPct)
		s.TotalMissing += cs.Missing
		if c.Kind.Numeric() {
			vals, dropped := finite(c.Floats())
			cs.NonFinite = dropped
			cs.Numeric = numericStats(vals)
			cs.Outliers = robustOutliers(vals, OutlierThreshold)
		}
		s.Cols = append(s.Cols, cs)
	}
	s.Duplicates = DuplicateRows(ds)
	return s
}

func numericStats(vals []float64) *NumericStats {
	mean, std := meanStd(vals)
	lo, hi := minMax(vals)
	return &NumericStats{
		Mean:   round2(mean),
		Median: round2(median(vals)),
		Std:    round2(std),
		Min:    round2(lo),
		Max:    round2(hi),
		Count:  len(vals),
	}
}

// robustOutliers counts |z| > thr using z = 0.6745 * (x - median) / MAD.
// Returns nil when the sample is too small to judge.
func robustOutliers(vals []float64, thr float64) *OutlierStats {
	if len(vals) < outlierMinValues {
		return nil
	}
	med, mad := medianMAD(vals)
	out := &OutlierStats{Threshold: thr}
	if mad == 0 {
		return out
	}
	for _, v := range vals {
		az := math.Abs(0.6745 * (v - med) / mad)
		if az > thr {
			out.Count++
		}
		if az > out.MaxAbsZ {
			out.MaxAbsZ = az
		}
	}
	out.MaxAbsZ = round2(out.MaxAbsZ)
	return out
}

// DuplicateRows counts rows equal, cell for cell, to an earlier row.
func DuplicateRows(ds *dataset.Dataset) int {
	seen := make(map[string]struct{}, ds.Rows())
	dup := 0
	var b strings.Builder
	for r := 0; r < ds.Rows(); r++ {
		b.Reset()
		for _, c := range ds.Columns() {
			writeCellKey(&b, c, r)
		}
		k := b.String()
		if _, ok := seen[k]; ok {
			dup++
			continue
		}
		seen[k] = struct{}{}
	}
	return dup
}

func writeCellKey(b *strings.Builder, c *dataset.Column, r int) {
	switch v := c.Value(r).(type) {
	case nil:
		b.WriteString("\x00N")
	case int64:
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 64))
	case float64:
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case bool:
		b.WriteString(strconv.FormatBool(v))
	case time.Time:
		b.WriteString(v.UTC().Format(time.RFC3339Nano))
	case string:
		b.WriteString(strconv.Quote(v))
	}
	b.WriteByte(0x1f)
}

// MemoryFootprint estimates the in-memory size of ds the way a columnar
// dataframe reports deep memory usage: a fixed index, 8 bytes per numeric or
// datetime cell, 1 byte per boolean cell, and a string header plus payload per text cell.
func MemoryFootprint(ds *dataset.Dataset) int64 {
	const (
		indexBytes  = 128
		wordBytes   = 8
		strOverhead = 49
	)
	total := int64(indexBytes)
	for _, c := range ds.Columns() {
		n := int64(c.Len())
		switch c.Kind {
		case dataset.KindInteger, dataset.KindFloat, dataset.KindDatetime:
			total += n * wordBytes
		case dataset.KindBoolean:
			if c.Missing() > 0 {
				total += n * wordBytes
				for i := 0; i < c.Len(); i++ {
					total += cellBytes(c, i, strOverhead)
				}
				continue
			}
			total += n
		default:
			total += n * wordBytes
			for i := 0; i < c.Len(); i++ {
				total += cellBytes(c, i, strOverhead)
			}
		}
	}
	return total
}

func cellBytes(c *dataset.Column, i int, overhead int64) int64 {
	if c.IsMissing(i) {
		return 24
	}
	return overhead + int64(len(c.Raw(i)))
}

// FormatBytes scales size by 1024 until it is below 1024 and prints two decimals.
func FormatBytes(size float64) string {
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.2f TB", size)
}
