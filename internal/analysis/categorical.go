package analysis

import (
	"fmt"
	"sort"

	"github.com/KaramelBytes/datalens/internal/dataset"
)

const (
	DefaultTopN = 10
	MinTopN     = 3
	MaxTopN     = 20
)

// CategoryFrequency is one row of a top-N frequency table.
type CategoryFrequency struct {
	Value   string  `json:"value"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
	Label   string  `json:"percent_label"`
}

// EffectiveTopN resolves a requested table size against the distinct value count.
// Zero requests the default; other values are clamped to [MinTopN, MaxTopN].
func EffectiveTopN(requested, distinct int) int {
	n := DefaultTopN
	if requested != 0 {
		n = requested
		if n < MinTopN {
			n = MinTopN
		}
		if n > MaxTopN {
			n = MaxTopN
		}
	}
	if n > distinct {
		n = distinct
	}
	return n
}

// TopCategories returns the most frequent non-missing values of column.
// Ties keep the order in which values first appear; percentages are
// relative to the returned rows.
func TopCategories(ds *dataset.Dataset, column string, topN int) ([]CategoryFrequency, error) {
	c, err := ds.Column(column)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	var order []string
	for i := 0; i < c.Len(); i++ {
		v, ok := c.Text(i)
		if !ok {
			continue
		}
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyColumn, column)
	}
	rows := make([]CategoryFrequency, len(order))
	for i, v := range order {
		rows[i] = CategoryFrequency{Value: v, Count: counts[v]}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Count > rows[j].Count })
	rows = rows[:EffectiveTopN(topN, len(rows))]

	total := 0
	for _, r := range rows {
		total += r.Count
	}
	for i := range rows {
		rows[i].Percent = round2(float64(rows[i].Count) / float64(total) * 100)
		rows[i].Label = fmt.Sprintf("%.2f%%", rows[i].Percent)
	}
	return rows, nil
}
