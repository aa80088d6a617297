package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/datalens/internal/dataset"
	"gonum.org/v1/gonum/stat"
)

// Method selects the correlation coefficient.
type Method string

const (
	MethodPearson  Method = "pearson"
	MethodSpearman Method = "spearman"
	MethodKendall  Method = "kendall"
)

const (
	// MaxCorrelationColumns caps the size of a correlation matrix.
	MaxCorrelationColumns = 10
	// DefaultCorrelationColumns is how many numeric columns are used when none are selected.
	DefaultCorrelationColumns = 5
	// NotableThreshold is the minimum |r| for a pair to be reported.
	NotableThreshold = 0.5
)

// ErrUnknownMethod is returned by ParseMethod for unsupported names.
var ErrUnknownMethod = errors.New("unknown correlation method")

// ParseMethod maps a case-insensitive name to a Method. Empty means Pearson.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodPearson:
		return MethodPearson, nil
	case MethodSpearman:
		return MethodSpearman, nil
	case MethodKendall:
		return MethodKendall, nil
	}
	return "", fmt.Errorf("%w: %q (use pearson, spearman or kendall)", ErrUnknownMethod, s)
}

// CorrelationMatrix is a symmetric coefficient matrix with 1.0 on the diagonal.
type CorrelationMatrix struct {
	Method  Method      `json:"method"`
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"` // row-major, Values[i][j]
}

// NotablePair is an unordered column pair whose coefficient passed NotableThreshold.
type NotablePair struct {
	A           string  `json:"column_a"`
	B           string  `json:"column_b"`
	Coefficient float64 `json:"coefficient"`
	Relation    string  `json:"relation"`
}

// Correlation bundles a matrix with its notable pairs.
type Correlation struct {
	Matrix    CorrelationMatrix `json:"matrix"`
	Notable   []NotablePair     `json:"notable_pairs"`
	Truncated bool              `json:"truncated"`
}

// Correlate computes the coefficient matrix over the selected numeric columns.
// An empty selection uses the first DefaultCorrelationColumns numeric columns.
// Selections beyond MaxCorrelationColumns are cut and reported via Truncated.
func Correlate(ds *dataset.Dataset, columns []string, method Method) (*Correlation, error) {
	if method == "" {
		method = MethodPearson
	}
	cols, truncated, err := selectNumeric(ds, columns)
	if err != nil {
		return nil, err
	}
	n := len(cols)
	names := make([]string, n)
	for i, c := range cols {
		names[i] = c.Name
	}
	mat := make([][]float64, n)
	for i := range mat {
		mat[i] = make([]float64, n)
		mat[i][i] = 1
	}
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			x, y := pairwiseComplete(cols[a], cols[b])
			r := coefficient(x, y, method)
			mat[a][b], mat[b][a] = r, r
		}
	}
	out := &Correlation{
		Matrix:    CorrelationMatrix{Method: method, Columns: names, Values: mat},
		Truncated: truncated,
	}
	out.Notable = NotablePairs(out.Matrix)
	return out, nil
}

func selectNumeric(ds *dataset.Dataset, columns []string) ([]*dataset.Column, bool, error) {
	if len(columns) == 0 {
		nums := ds.NumericColumns()
		if len(nums) < 2 {
			return nil, false, fmt.Errorf("%w: need at least 2, dataset has %d", ErrInsufficientColumns, len(nums))
		}
		if len(nums) > DefaultCorrelationColumns {
			nums = nums[:DefaultCorrelationColumns]
		}
		return nums, false, nil
	}
	seen := make(map[string]bool, len(columns))
	var cols []*dataset.Column
	for _, name := range columns {
		if seen[name] {
			continue
		}
		seen[name] = true
		c, err := ds.Column(name)
		if err != nil {
			return nil, false, err
		}
		if !c.Kind.Numeric() {
			return nil, false, fmt.Errorf("%w: %q is %s", ErrNotNumeric, name, c.Kind)
		}
		cols = append(cols, c)
	}
	truncated := false
	if len(cols) > MaxCorrelationColumns {
		cols = cols[:MaxCorrelationColumns]
		truncated = true
	}
	if len(cols) < 2 {
		return nil, false, fmt.Errorf("%w: need at least 2, selected %d", ErrInsufficientColumns, len(cols))
	}
	return cols, truncated, nil
}

// pairwiseComplete returns the values of rows where both columns hold finite values.
func pairwiseComplete(a, b *dataset.Column) (x, y []float64) {
	for i := 0; i < a.Len(); i++ {
		va, okA := a.Float(i)
		vb, okB := b.Float(i)
		if okA && okB && isFinite(va) && isFinite(vb) {
			x = append(x, va)
			y = append(y, vb)
		}
	}
	return x, y
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// coefficient returns 0 when the coefficient is undefined.
func coefficient(x, y []float64, method Method) float64 {
	if len(x) < 2 {
		return 0
	}
	var r float64
	switch method {
	case MethodSpearman:
		r = stat.Correlation(averageRanks(x), averageRanks(y), nil)
	case MethodKendall:
		r = kendallTauB(x, y)
	default:
		r = stat.Correlation(x, y, nil)
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r
}

// kendallTauB counts concordant and discordant pairs with tie correction.
func kendallTauB(x, y []float64) float64 {
	var concordant, discordant, tiesX, tiesY float64
	n := len(x)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := sign(x[i] - x[j])
			dy := sign(y[i] - y[j])
			switch {
			case dx == 0 && dy == 0:
				tiesX++
				tiesY++
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case dx == dy:
				concordant++
			default:
				discordant++
			}
		}
	}
	n0 := float64(n*(n-1)) / 2
	denom := math.Sqrt((n0 - tiesX) * (n0 - tiesY))
	if denom == 0 {
		return math.NaN()
	}
	return (concordant - discordant) / denom
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// NotablePairs scans the strict upper triangle for |r| >= NotableThreshold and r < 1,
// ordered by descending coefficient.
func NotablePairs(m CorrelationMatrix) []NotablePair {
	out := []NotablePair{}
	for i := range m.Columns {
		for j := i + 1; j < len(m.Columns); j++ {
			v := m.Values[i][j]
			if math.Abs(v) < NotableThreshold || v >= 1.0 {
				continue
			}
			rel := "Negative"
			if v > 0 {
				rel = "Positive"
			}
			out = append(out, NotablePair{A: m.Columns[i], B: m.Columns[j], Coefficient: v, Relation: rel})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Coefficient > out[j].Coefficient })
	return out
}

// Markdown renders the matrix and notable pairs.
func (c *Correlation) Markdown() string {
	var b strings.Builder
	m := c.Matrix
	b.WriteString(fmt.Sprintf("[CORRELATIONS] (%s)\n", m.Method))
	b.WriteString("| |")
	for _, name := range m.Columns {
		b.WriteString(" " + safeVal(name) + " |")
	}
	b.WriteString("\n|---|")
	for range m.Columns {
		b.WriteString("---|")
	}
	b.WriteString("\n")
	for i, name := range m.Columns {
		b.WriteString("| " + safeVal(name) + " |")
		for j := range m.Columns {
			b.WriteString(fmt.Sprintf(" %.2f |", m.Values[i][j]))
		}
		b.WriteString("\n")
	}
	if c.Truncated {
		b.WriteString(fmt.Sprintf("Note: selection truncated to the first %d columns.\n", MaxCorrelationColumns))
	}
	if len(c.Notable) > 0 {
		b.WriteString(fmt.Sprintf("\n[NOTABLE PAIRS] (|r| >= %.1f)\n", NotableThreshold))
		for _, p := range c.Notable {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f (%s)\n", p.A, p.B, p.Coefficient, p.Relation))
		}
	}
	return b.String()
}
