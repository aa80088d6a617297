package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Markdown renders a compact report suitable for prompts or standalone docs.
func (s *Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if s.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", s.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", s.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n", s.Columns))
	b.WriteString(fmt.Sprintf("Memory: %s\n", s.Memory))
	b.WriteString(fmt.Sprintf("Duplicate rows: %d\n\n", s.Duplicates))

	b.WriteString("[SCHEMA]\n")
	for _, c := range s.Cols {
		b.WriteString(fmt.Sprintf("- %s: %s", safeName(c.Name), c.Kind))
		if n := c.Numeric; n != nil {
			b.WriteString(fmt.Sprintf(" (count %d, mean %.2f, median %.2f, std %.2f, min %.2f, max %.2f)",
				n.Count, n.Mean, n.Median, n.Std, n.Min, n.Max))
		}
		if c.NonFinite > 0 {
			b.WriteString(fmt.Sprintf(" [%d non-finite values excluded]", c.NonFinite))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n[MISSING VALUES]\n")
	b.WriteString("| column | missing | percent |\n| --- | --- | --- |\n")
	for _, c := range s.Cols {
		b.WriteString(fmt.Sprintf("| %s | %d | %s |\n", safeVal(safeName(c.Name)), c.Missing, c.MissingLabel))
	}
	b.WriteString(fmt.Sprintf("Total missing: %d\n", s.TotalMissing))

	if notes := s.OutlierNotes(); len(notes) > 0 {
		b.WriteString("\n[OUTLIERS]\n")
		for _, n := range notes {
			b.WriteString("- ")
			b.WriteString(n)
			b.WriteString("\n")
		}
	}

	if len(s.Head) > 0 {
		b.WriteString("\n[HEAD]\n")
		b.WriteString("| ")
		b.WriteString(strings.Join(mapStrings(s.Header, func(h string) string { return safeVal(safeName(h)) }), " | "))
		b.WriteString(" |\n|")
		for range s.Header {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range s.Head {
			cells := make([]string, len(s.Header))
			for i := range cells {
				if i < len(row) {
					v := row[i]
					cells[i] = safeVal(truncate(v, 80))
				}
			}
			b.WriteString("| ")
			b.WriteString(strings.Join(cells, " | "))
			b.WriteString(" |\n")
		}
	}
	if len(s.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range s.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// OutlierNotes lists one line per numeric column with at least one outlier.
func (s *Summary) OutlierNotes() []string {
	var out []string
	for _, c := range s.Cols {
		o := c.Outliers
		if o == nil || o.Count == 0 {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %d values above |z|>%.1f (max |z|≈%.2f)", safeName(c.Name), o.Count, o.Threshold, o.MaxAbsZ))
	}
	return out
}

// Markdown renders the table with one row per statistic. Undefined cells print as "-".
func (t *DescribeTable) Markdown() string {
	var b strings.Builder
	b.WriteString("[DESCRIBE]\n| |")
	for _, c := range t.Columns {
		b.WriteString(" " + safeVal(safeName(c)) + " |")
	}
	b.WriteString("\n|---|")
	for range t.Columns {
		b.WriteString("---|")
	}
	b.WriteString("\n")
	for i, stat := range t.Stats {
		b.WriteString("| " + stat + " |")
		for _, v := range t.Values[i] {
			if v == nil {
				b.WriteString(" - |")
				continue
			}
			b.WriteString(fmt.Sprintf(" %.2f |", *v))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// CategoriesMarkdown renders a frequency table for column.
func CategoriesMarkdown(column string, rows []CategoryFrequency) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[TOP CATEGORIES] %s\n", safeName(column)))
	b.WriteString("| value | count | percent |\n| --- | --- | --- |\n")
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("| %s | %d | %s |\n", safeVal(r.Value), r.Count, r.Label))
	}
	return b.String()
}

// truncate shortens s to at most n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

func mapStrings(in []string, f func(string) string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = f(s)
	}
	return out
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
