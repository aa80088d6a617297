package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, body string) *Dataset {
	t.Helper()
	ds, err := Parse("sample.csv", strings.NewReader(body), ParseOptions{})
	require.NoError(t, err)
	return ds
}

func TestParseInfersKinds(t *testing.T) {
	ds := parse(t, strings.Join([]string{
		"id,price,name,active,created",
		"1,9.5,apple,true,2024-01-02",
		"2,,pear,False,2024-01-03",
		"3,12,NA,TRUE,2024-02-01",
	}, "\n"))

	require.Equal(t, 3, ds.Rows())
	want := map[string]Kind{
		"id":      KindInteger,
		"price":   KindFloat,
		"name":    KindText,
		"active":  KindBoolean,
		"created": KindDatetime,
	}
	for _, c := range ds.Columns() {
		assert.Equal(t, want[c.Name], c.Kind, c.Name)
	}

	price, err := ds.Column("price")
	require.NoError(t, err)
	assert.Equal(t, 1, price.Missing())
	assert.Nil(t, price.Value(1))
	assert.Equal(t, []float64{9.5, 12}, price.Floats())

	id, _ := ds.Column("id")
	assert.Equal(t, int64(2), id.Value(1))

	active, _ := ds.Column("active")
	assert.Equal(t, false, active.Value(1))
	txt, ok := active.Text(2)
	assert.True(t, ok)
	assert.Equal(t, "True", txt)

	created, _ := ds.Column("created")
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), created.Value(2))

	name, _ := ds.Column("name")
	assert.True(t, name.IsMissing(2))
	assert.Equal(t, "NA", name.Raw(2))
}

func TestParseEmptyInputIsParseFailure(t *testing.T) {
	_, err := Parse("empty.csv", strings.NewReader(""), ParseOptions{})
	require.ErrorIs(t, err, ErrParse)
}

func TestParseRejectsLongRows(t *testing.T) {
	_, err := Parse("bad.csv", strings.NewReader("a,b\n1,2,3\n"), ParseOptions{})
	require.ErrorIs(t, err, ErrParse)
	assert.Contains(t, err.Error(), "expected 2 fields")
}

func TestParseRejectsBadQuotes(t *testing.T) {
	_, err := Parse("bad.csv", strings.NewReader("a,b\n\"x,2\n"), ParseOptions{})
	require.ErrorIs(t, err, ErrParse)
}

func TestParseRejectsInvalidUTF8(t *testing.T) {
	_, err := Parse("bad.csv", strings.NewReader("a\n\xff\xfe\n"), ParseOptions{})
	require.ErrorIs(t, err, ErrParse)
}

func TestParsePadsShortRows(t *testing.T) {
	ds := parse(t, "a,b,c\n1,2\n3,4,5\n")
	c, err := ds.Column("c")
	require.NoError(t, err)
	assert.True(t, c.IsMissing(0))
	assert.Equal(t, KindInteger, c.Kind)
}

func TestParseHeaderNames(t *testing.T) {
	ds := parse(t, "\ufeffx,x,,x\n1,2,3,4\n")
	assert.Equal(t, []string{"x", "x.1", "Unnamed: 2", "x.2"}, ds.Header())
}

func TestParseHeaderOnly(t *testing.T) {
	ds := parse(t, "a,b\n")
	assert.Equal(t, 0, ds.Rows())
	require.Len(t, ds.Columns(), 2)
	assert.Equal(t, KindText, ds.Columns()[0].Kind)
}

func TestParseMaxRowsWarns(t *testing.T) {
	ds, err := Parse("big.csv", strings.NewReader("a\n1\n2\n3\n"), ParseOptions{MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Rows())
	require.Len(t, ds.Warnings(), 1)
	assert.Contains(t, ds.Warnings()[0], "2/3")
}

func TestParseLocaleNumbers(t *testing.T) {
	ds, err := Parse("eu.csv", strings.NewReader("v;w\n1.000,5;3\n2.000,25;4\n"), ParseOptions{
		Delimiter:          ';',
		DecimalSeparator:   ',',
		ThousandsSeparator: '.',
	})
	require.NoError(t, err)
	v, _ := ds.Column("v")
	assert.Equal(t, KindFloat, v.Kind)
	assert.Equal(t, []float64{1000.5, 2000.25}, v.Floats())
}

func TestParseFileSniffsTSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.tsv")
	require.NoError(t, os.WriteFile(path, []byte("a\tb\n1\tx\n"), 0o644))
	ds, err := ParseFile(path, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, "data.tsv", ds.Name())
	assert.Equal(t, []string{"a", "b"}, ds.Header())
}

func TestColumnLookupMissing(t *testing.T) {
	ds := parse(t, "a\n1\n")
	_, err := ds.Column("zzz")
	require.ErrorIs(t, err, ErrColumnNotFound)
}

func TestHeadAndGroups(t *testing.T) {
	ds := parse(t, "n,s,b\n1,x,true\n2,,false\n3,z,true\n")
	assert.Equal(t, [][]string{{"1", "x", "true"}, {"2", "", "false"}}, ds.Head(2))
	assert.Len(t, ds.Head(10), 3)
	require.Len(t, ds.NumericColumns(), 1)
	assert.Equal(t, "n", ds.NumericColumns()[0].Name)
	require.Len(t, ds.CategoricalColumns(), 2)
}
