package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/KaramelBytes/datalens/internal/charts"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/utils"
	"github.com/spf13/cobra"
)

var (
	chartColumn string
	chartBins   int
	chartTop    int
	chartTheme  string
	chartColor  string
	chartWidth  int
	chartHeight int
	chartFormat string
	chartOutput string

	heatmapColumns  []string
	heatmapMethod   string
	heatmapColormap string
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render distribution, category and correlation charts as PNG or SVG",
}

func chartPrefs() (charts.Preferences, charts.Format, error) {
	p := charts.Preferences{
		Theme:  charts.Theme(strings.ToLower(chartTheme)),
		Color:  chartColor,
		Width:  chartWidth,
		Height: chartHeight,
	}
	if err := p.Validate(); err != nil {
		return p, "", err
	}
	f, err := charts.ParseFormat(chartFormat)
	return p, f, err
}

// writeChart saves img to --output, or to <stem>_<suffix>.<ext> next to the CSV.
func writeChart(cmd *cobra.Command, csvPath, suffix string, img *charts.Image) error {
	path := chartOutput
	if path == "" {
		stem := strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath))
		path = filepath.Join(filepath.Dir(csvPath), fmt.Sprintf("%s_%s.%s", stem, suffix, img.Format))
	}
	if err := utils.SafeWriteFile(path, img.Data); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s chart to %s\n", suffix, path)
	return nil
}

var chartHistogramCmd = &cobra.Command{
	Use:   "histogram <file>",
	Short: "Histogram of one numeric column",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs, format, err := chartPrefs()
		if err != nil {
			return err
		}
		ds, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		name, err := numericColumnArg(ds)
		if err != nil {
			return err
		}
		c, err := ds.Column(name)
		if err != nil {
			return err
		}
		if !c.Kind.Numeric() {
			return fmt.Errorf("%w: %q is %s", analysis.ErrNotNumeric, c.Name, c.Kind)
		}
		img, err := charts.Histogram(c.Name, c.Floats(), chartBins, prefs, format)
		if err != nil {
			return err
		}
		return writeChart(cmd, args[0], "histogram", img)
	},
}

// numericColumnArg returns --column or the first numeric column.
func numericColumnArg(ds *dataset.Dataset) (string, error) {
	if chartColumn != "" {
		return chartColumn, nil
	}
	nums := ds.NumericColumns()
	if len(nums) == 0 {
		return "", fmt.Errorf("%w: no numeric columns to chart", analysis.ErrInsufficientColumns)
	}
	return nums[0].Name, nil
}

func distributionChartCmd(kind string) *cobra.Command {
	return &cobra.Command{
		Use:   kind + " <file>",
		Short: fmt.Sprintf("%s plot of one numeric column", strings.ToUpper(kind[:1])+kind[1:]),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, format, err := chartPrefs()
			if err != nil {
				return err
			}
			ds, err := loadDataset(args[0])
			if err != nil {
				return err
			}
			name, err := numericColumnArg(ds)
			if err != nil {
				return err
			}
			b, err := analysis.Box(ds, name)
			if err != nil {
				return err
			}
			var img *charts.Image
			if kind == "violin" {
				density, err := analysis.Density(ds, name, 0)
				if err != nil {
					return err
				}
				img, err = charts.Violin(name, density, b, prefs, format)
				if err != nil {
					return err
				}
			} else {
				if img, err = charts.BoxPlot(name, b, prefs, format); err != nil {
					return err
				}
			}
			return writeChart(cmd, args[0], kind, img)
		},
	}
}

var chartHeatmapCmd = &cobra.Command{
	Use:   "heatmap <file>",
	Short: "Correlation heatmap of numeric columns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs, format, err := chartPrefs()
		if err != nil {
			return err
		}
		cmap, err := charts.ParseColormap(heatmapColormap)
		if err != nil {
			return err
		}
		method, err := analysis.ParseMethod(heatmapMethod)
		if err != nil {
			return err
		}
		ds, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		c, err := analysis.Correlate(ds, heatmapColumns, method)
		if err != nil {
			return err
		}
		img, err := charts.Heatmap(fmt.Sprintf("Correlation matrix (%s)", method), c.Matrix, cmap, prefs, format)
		if err != nil {
			return err
		}
		return writeChart(cmd, args[0], "heatmap", img)
	},
}

func categoryChartCmd(kind string) *cobra.Command {
	return &cobra.Command{
		Use:   kind + " <file>",
		Short: fmt.Sprintf("%s chart of the most frequent values of a column", strings.ToUpper(kind[:1])+kind[1:]),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, format, err := chartPrefs()
			if err != nil {
				return err
			}
			ds, err := loadDataset(args[0])
			if err != nil {
				return err
			}
			name := chartColumn
			if name == "" {
				cats := ds.CategoricalColumns()
				if len(cats) == 0 {
					return fmt.Errorf("%w: no categorical columns, pass --column", analysis.ErrInsufficientColumns)
				}
				name = cats[0].Name
			}
			rows, err := analysis.TopCategories(ds, name, chartTop)
			if err != nil {
				return err
			}
			var img *charts.Image
			if kind == "pie" {
				img, err = charts.CategoryPie(name, rows, prefs, format)
			} else {
				img, err = charts.CategoryBars(name, rows, prefs, format)
			}
			if err != nil {
				return err
			}
			return writeChart(cmd, args[0], kind, img)
		},
	}
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(
		chartHistogramCmd,
		distributionChartCmd("box"),
		distributionChartCmd("violin"),
		categoryChartCmd("bar"),
		categoryChartCmd("pie"),
		chartHeatmapCmd,
	)

	pf := chartCmd.PersistentFlags()
	pf.StringVarP(&chartColumn, "column", "c", "", "column to chart (default: first numeric or categorical column)")
	pf.StringVar(&chartTheme, "theme", "light", "light | dark")
	pf.StringVar(&chartColor, "color", charts.DefaultColor, "bar color as hex, e.g. #4527A0")
	pf.IntVar(&chartWidth, "width", 0, "image width in pixels (default 1024, max 4096)")
	pf.IntVar(&chartHeight, "height", 0, "image height in pixels (default 512, max 4096)")
	pf.StringVarP(&chartFormat, "format", "f", "png", "png | svg")
	pf.StringVarP(&chartOutput, "output", "o", "", "output path (default: next to the CSV)")
	chartHistogramCmd.Flags().IntVar(&chartBins, "bins", 0, "number of bins (default: automatic)")
	pf.IntVarP(&chartTop, "top", "n", 0, "bar/pie: number of categories")
	hf := chartHeatmapCmd.Flags()
	hf.StringSliceVar(&heatmapColumns, "columns", nil, "numeric columns to correlate (default: first five)")
	hf.StringVarP(&heatmapMethod, "method", "m", "pearson", "pearson | spearman | kendall")
	hf.StringVar(&heatmapColormap, "colormap", "coolwarm", "coolwarm | viridis | plasma | inferno | magma | cividis")
}
