package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/datalens/internal/ai"
	"github.com/KaramelBytes/datalens/internal/charts"
	cfgpkg "github.com/KaramelBytes/datalens/internal/config"
	"github.com/KaramelBytes/datalens/internal/narrative"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const salesCSV = "region,units,price\nnorth,10,2.5\nsouth,12,2.0\nnorth,7,3.1\neast,,2.8\nnorth,10,2.5\n"

// resetFlags clears values left behind by an earlier invocation; cobra keeps
// flag state in package variables between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args in an isolated HOME and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg = nil
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, "command %v", args)
	return out
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range cfgpkg.Keys {
		t.Setenv(cfgpkg.EnvPrefix+"_"+strings.ToUpper(k), "")
	}
	path := filepath.Join(home, "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(salesCSV), 0o644))
	return path
}

func TestCLI_Analyze(t *testing.T) {
	path := isolate(t)
	out := runCmd(t, "analyze", path)
	assert.Contains(t, out, "[DATASET SUMMARY]")
	assert.Contains(t, out, "Rows: 5")
	assert.Contains(t, out, "Duplicate rows: 1")

	out = runCmd(t, "analyze", path, "--json")
	var s map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, float64(5), s["rows"])

	target := filepath.Join(filepath.Dir(path), "summary.md")
	runCmd(t, "analyze", path, "-o", target)
	body, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(body), "[MISSING VALUES]")
}

func TestCLI_DescribeCorrelateCategories(t *testing.T) {
	path := isolate(t)
	out := runCmd(t, "describe", path)
	assert.Contains(t, out, "[DESCRIBE]")
	assert.Contains(t, out, "| | units | price |")

	out = runCmd(t, "correlate", path, "--method", "spearman", "--columns", "units,price")
	assert.Contains(t, out, "[CORRELATIONS] (spearman)")

	_, err := execute(t, "correlate", path, "--method", "cosine")
	require.Error(t, err)

	out = runCmd(t, "categories", path)
	assert.Contains(t, out, "[TOP CATEGORIES] region")
	assert.Contains(t, out, "| north | 3 | 60.00% |")

	_, err = execute(t, "categories", path, "--column", "nope")
	require.Error(t, err)
}

func TestCLI_ExportAndChart(t *testing.T) {
	path := isolate(t)
	dir := filepath.Dir(path)
	runCmd(t, "export", path, "--format", "xlsx", "--out-dir", dir)
	f, err := excelize.OpenFile(filepath.Join(dir, "sales_processed.xlsx"))
	require.NoError(t, err)
	rows, err := f.GetRows("Data")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Len(t, rows, 6)

	runCmd(t, "export", path, "-f", "json", "-o", filepath.Join(dir, "out.json"))
	var recs []map[string]any
	body, err := os.ReadFile(filepath.Join(dir, "out.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &recs))
	assert.Len(t, recs, 5)

	_, err = execute(t, "export", path, "--format", "parquet")
	require.Error(t, err)

	runCmd(t, "chart", "histogram", path, "--column", "price", "--format", "svg")
	_, err = os.Stat(filepath.Join(dir, "sales_histogram.svg"))
	assert.NoError(t, err)

	runCmd(t, "chart", "pie", path, "--theme", "dark")
	_, err = os.Stat(filepath.Join(dir, "sales_pie.png"))
	assert.NoError(t, err)

	_, err = execute(t, "chart", "bar", path, "--color", "purple")
	require.Error(t, err)
}

func TestCLI_DistributionAndHeatmapCharts(t *testing.T) {
	path := isolate(t)
	dir := filepath.Dir(path)

	runCmd(t, "chart", "box", path, "--column", "price")
	runCmd(t, "chart", "violin", path, "--format", "svg")
	runCmd(t, "chart", "heatmap", path, "--method", "spearman", "--colormap", "cividis")
	for _, name := range []string{"sales_box.png", "sales_violin.svg", "sales_heatmap.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	_, err := execute(t, "chart", "heatmap", path, "--colormap", "jet")
	assert.ErrorIs(t, err, charts.ErrUnknownColormap)
	_, err = execute(t, "chart", "box", path, "--width", "9000")
	assert.ErrorIs(t, err, charts.ErrInvalidSize)
}

func TestCLI_AskHelpMatchesDefaultQuestion(t *testing.T) {
	for _, phrase := range []string{"overview", "data quality issues", "next steps"} {
		assert.Contains(t, askCmd.Long, phrase)
		assert.Contains(t, narrative.DefaultQuestion, phrase)
	}
}

func TestCLI_AskPrintPrompt(t *testing.T) {
	path := isolate(t)
	out := runCmd(t, "ask", path, "Which", "region", "sells", "most?", "--print-prompt")
	assert.Contains(t, out, "[DATASET SUMMARY]")
	assert.Contains(t, out, "[QUESTION]\nWhich region sells most?\n")
}

func TestCLI_AskWithoutKeyIsUnavailable(t *testing.T) {
	path := isolate(t)
	_, err := execute(t, "ask", path, "--provider", "openai")
	require.ErrorIs(t, err, narrative.ErrServiceUnavailable)
	require.ErrorIs(t, err, ai.ErrMissingAPIKey)
}

func TestCLI_AskOllama(t *testing.T) {
	path := isolate(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "North leads on units."},
			"done":    true,
		})
	}))
	defer srv.Close()
	t.Setenv("DATALENS_OLLAMA_HOST", srv.URL)

	out := runCmd(t, "ask", path, "--provider", "ollama")
	assert.Equal(t, "North leads on units.\n", out)
}

func TestCLI_ConfigSetShow(t *testing.T) {
	isolate(t)
	file := filepath.Join(t.TempDir(), "config.yaml")
	runCmd(t, "config", "set", "openai_api_key", "sk-abcdef123456", "--config", file)
	runCmd(t, "config", "set", "default_provider", "local", "--config", file)

	c, err := cfgpkg.Load(file)
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.DefaultProvider)
	assert.Equal(t, "sk-abcdef123456", c.OpenAIAPIKey)

	out := runCmd(t, "config", "show", "--config", file)
	assert.Contains(t, out, "openai_api_key: sk-****456")
	assert.Contains(t, out, "default_provider: ollama")

	_, err = execute(t, "config", "set", "default_provider", "bard", "--config", file)
	require.Error(t, err)
	_, err = execute(t, "config", "set", "max_rows", "-1", "--config", file)
	require.Error(t, err)
}

func TestCLI_ModelsRecommend(t *testing.T) {
	isolate(t)
	out := runCmd(t, "models", "recommend", "--provider", "openai", "--tier", "cheap")
	assert.Equal(t, "gpt-4o-mini\n", out)
}

func TestParseOptions(t *testing.T) {
	isolate(t)
	flagDelimiter, flagDecimal, flagThousands = "tab", "comma", "."
	t.Cleanup(func() { flagDelimiter, flagDecimal, flagThousands = "", "", "" })
	opt, err := parseOptions()
	require.NoError(t, err)
	assert.Equal(t, '\t', opt.Delimiter)
	assert.Equal(t, ',', opt.DecimalSeparator)
	assert.Equal(t, '.', opt.ThousandsSeparator)

	flagDelimiter = "#"
	_, err = parseOptions()
	assert.Error(t, err)
}
