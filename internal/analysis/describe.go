package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// DescribeStats lists the rows of a DescribeTable in display order.
var DescribeStats = []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}

// DescribeTable is a per-column statistics grid over numeric columns.
// A nil cell means the statistic is undefined (for example std of one value).
type DescribeTable struct {
	Stats   []string     `json:"stats"`
	Columns []string     `json:"columns"`
	Values  [][]*float64 `json:"values"` // Values[stat][column]
}

// Describe computes count, mean, std, min, quartiles and max for every numeric
// column, rounded to two decimals.
func Describe(ds *dataset.Dataset) (*DescribeTable, error) {
	nums := ds.NumericColumns()
	if len(nums) == 0 {
		return nil, fmt.Errorf("%w: describe needs at least one numeric column", ErrInsufficientColumns)
	}
	t := &DescribeTable{Stats: DescribeStats, Values: make([][]*float64, len(DescribeStats))}
	for i := range t.Values {
		t.Values[i] = make([]*float64, len(nums))
	}
	for j, c := range nums {
		t.Columns = append(t.Columns, c.Name)
		col, err := describeColumn(c)
		if err != nil {
			return nil, err
		}
		for i, name := range DescribeStats {
			if v, ok := col[name]; ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
				r := round2(v)
				t.Values[i][j] = &r
			}
		}
	}
	return t, nil
}

// describeColumn runs the dataframe describe over the finite, non-missing values of c.
// The dataframe's quartiles come from the empirical CDF, so quartiles are
// recomputed by linear interpolation to match the usual describe output.
func describeColumn(c *dataset.Column) (map[string]float64, error) {
	vals, _ := finite(c.Floats())
	out := map[string]float64{"count": float64(len(vals))}
	if len(vals) == 0 {
		return out, nil
	}
	df := dataframe.New(series.New(vals, series.Float, c.Name))
	desc := df.Describe()
	if desc.Err != nil {
		return nil, fmt.Errorf("describe %q: %w", c.Name, desc.Err)
	}
	recs := desc.Records()
	for _, rec := range recs[1:] {
		if len(rec) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			continue
		}
		switch rec[0] {
		case "mean", "min", "max":
			out[rec[0]] = v
		case "stddev", "std":
			out["std"] = v
		}
	}
	if _, ok := out["mean"]; !ok {
		out["mean"], out["std"] = meanStd(vals)
	}
	if _, ok := out["min"]; !ok {
		out["min"], out["max"] = minMax(vals)
	}
	if len(vals) < 2 {
		out["std"] = math.NaN()
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	out["25%"] = quantile(sorted, 0.25)
	out["50%"] = quantile(sorted, 0.5)
	out["75%"] = quantile(sorted, 0.75)
	return out, nil
}
