package analysis

import (
	"errors"
	"math"
	"sort"
	"strconv"

	"github.com/KaramelBytes/datalens/internal/dataset"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientColumns is returned when fewer than two usable numeric columns remain.
	ErrInsufficientColumns = errors.New("insufficient numeric columns")
	// ErrEmptyColumn is returned when a column has no non-missing values.
	ErrEmptyColumn = errors.New("column has no values")
	// ErrNotNumeric is returned when a numeric operation names a non-numeric column.
	ErrNotNumeric = errors.New("column is not numeric")
	// ErrColumnNotFound aliases the dataset lookup error so callers need one import.
	ErrColumnNotFound = dataset.ErrColumnNotFound
)

// round2 rounds half away from zero to two decimals.
func round2(x float64) float64 { return roundTo(x, 2) }

func roundTo(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

// percentLabel renders a rounded percent the way a float prints in a
// dataframe cell: 12.5%, 0.0%, 33.33%.
func percentLabel(p float64) string {
	s := strconv.FormatFloat(p, 'f', -1, 64)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s + "%"
		}
	}
	return s + ".0%"
}

// finite drops NaN and ±Inf, returning the kept values and how many were dropped.
func finite(vals []float64) ([]float64, int) {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out, len(vals) - len(out)
}

// meanStd returns the mean and sample standard deviation. Std is 0 for fewer than two values.
func meanStd(vals []float64) (mean, std float64) {
	switch len(vals) {
	case 0:
		return 0, 0
	case 1:
		return vals[0], 0
	}
	mean, std = stat.MeanStdDev(vals, nil)
	return mean, std
}

func minMax(vals []float64) (lo, hi float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	lo, hi = vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// median of unsorted values, averaging the two middle values for even counts.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	return quantile(cp, 0.5)
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (med, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	med = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - med)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

// quantile interpolates linearly between closest ranks of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// averageRanks assigns 1-based ranks, giving tied values the mean of their positions.
func averageRanks(vals []float64) []float64 {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })
	ranks := make([]float64, len(vals))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && vals[idx[j+1]] == vals[idx[i]] {
			j++
		}
		r := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = r
		}
		i = j + 1
	}
	return ranks
}
