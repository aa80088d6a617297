package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/datalens/internal/dataset"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// WhiskerIQR is how many interquartile ranges a whisker may reach past a quartile.
const WhiskerIQR = 1.5

// BoxStats is the five-number summary of a numeric column plus the values
// beyond the whiskers.
type BoxStats struct {
	Column       string    `json:"column"`
	Count        int       `json:"count"`
	Q1           float64   `json:"q1"`
	Median       float64   `json:"median"`
	Q3           float64   `json:"q3"`
	LowerWhisker float64   `json:"lower_whisker"`
	UpperWhisker float64   `json:"upper_whisker"`
	Outliers     []float64 `json:"outliers"`
}

// Box computes BoxStats over the finite values of a numeric column. Whiskers
// end at the most extreme values within WhiskerIQR interquartile ranges.
func Box(ds *dataset.Dataset, column string) (*BoxStats, error) {
	sorted, err := numericValues(ds, column)
	if err != nil {
		return nil, err
	}
	b := &BoxStats{
		Column:   column,
		Count:    len(sorted),
		Q1:       quantile(sorted, 0.25),
		Median:   quantile(sorted, 0.5),
		Q3:       quantile(sorted, 0.75),
		Outliers: []float64{},
	}
	iqr := b.Q3 - b.Q1
	lo, hi := b.Q1-WhiskerIQR*iqr, b.Q3+WhiskerIQR*iqr
	b.LowerWhisker, b.UpperWhisker = b.Q1, b.Q3
	for _, v := range sorted {
		if v < lo || v > hi {
			b.Outliers = append(b.Outliers, v)
			continue
		}
		b.LowerWhisker = math.Min(b.LowerWhisker, v)
		b.UpperWhisker = math.Max(b.UpperWhisker, v)
	}
	return b, nil
}

// DensityPoint is one sample of an estimated density curve.
type DensityPoint struct {
	X       float64 `json:"x"`
	Density float64 `json:"density"`
}

// Density estimates the distribution of a numeric column with a Gaussian
// kernel and Scott's bandwidth, sampled at points evenly spaced over the data
// range padded by three bandwidths on each side. A constant column yields a
// single point.
func Density(ds *dataset.Dataset, column string, points int) ([]DensityPoint, error) {
	sorted, err := numericValues(ds, column)
	if err != nil {
		return nil, err
	}
	if points < 2 {
		points = 100
	}
	n := float64(len(sorted))
	bw := 0.0
	if len(sorted) > 1 {
		bw = stat.StdDev(sorted, nil) * math.Pow(n, -0.2)
	}
	if bw == 0 {
		return []DensityPoint{{X: sorted[0], Density: 1}}, nil
	}
	lo, hi := sorted[0]-3*bw, sorted[len(sorted)-1]+3*bw
	step := (hi - lo) / float64(points-1)
	out := make([]DensityPoint, points)
	for i := range out {
		x := lo + float64(i)*step
		sum := 0.0
		for _, v := range sorted {
			sum += distuv.UnitNormal.Prob((x - v) / bw)
		}
		out[i] = DensityPoint{X: x, Density: sum / (n * bw)}
	}
	return out, nil
}

// numericValues returns the sorted finite values of column.
func numericValues(ds *dataset.Dataset, column string) ([]float64, error) {
	c, err := ds.Column(column)
	if err != nil {
		return nil, err
	}
	if !c.Kind.Numeric() {
		return nil, fmt.Errorf("%w: %q is %s", ErrNotNumeric, c.Name, c.Kind)
	}
	vals, _ := finite(c.Floats())
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyColumn, column)
	}
	sort.Float64s(vals)
	return vals, nil
}
