package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/spf13/cobra"
)

var (
	corrColumns    []string
	corrMethod     string
	corrOutputPath string
	corrJSON       bool
)

var correlateCmd = &cobra.Command{
	Use:   "correlate <file>",
	Short: "Compute a correlation matrix over numeric columns",
	Long: `Compute a Pearson, Spearman or Kendall correlation matrix. Without --columns the
first five numeric columns are used; selections longer than ten columns are truncated.`,
	Example: `  datalens correlate sales.csv
  datalens correlate sales.csv --columns units,price,discount --method spearman`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method, err := analysis.ParseMethod(corrMethod)
		if err != nil {
			return err
		}
		ds, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		c, err := analysis.Correlate(ds, corrColumns, method)
		if err != nil {
			return err
		}
		out := []byte(c.Markdown())
		if corrJSON {
			if out, err = json.MarshalIndent(c, "", "  "); err != nil {
				return fmt.Errorf("marshal correlation: %w", err)
			}
			out = append(out, '\n')
		}
		return emit(cmd.OutOrStdout(), corrOutputPath, out, "correlations")
	},
}

func init() {
	rootCmd.AddCommand(correlateCmd)
	correlateCmd.Flags().StringSliceVar(&corrColumns, "columns", nil, "comma-separated numeric columns (default: first five)")
	correlateCmd.Flags().StringVarP(&corrMethod, "method", "m", "pearson", "pearson | spearman | kendall")
	correlateCmd.Flags().StringVarP(&corrOutputPath, "output", "o", "", "optional path to write the matrix")
	correlateCmd.Flags().BoolVar(&corrJSON, "json", false, "print JSON instead of Markdown")
}
