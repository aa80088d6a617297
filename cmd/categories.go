package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/spf13/cobra"
)

var (
	catColumn     string
	catTop        int
	catOutputPath string
	catJSON       bool
)

var categoriesCmd = &cobra.Command{
	Use:   "categories <file>",
	Short: "Show the most frequent values of a column",
	Long: `Show the most frequent values of a column with counts and percentages of the
displayed rows. --top 0 shows up to ten values; other values are clamped to 3..20.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		column := catColumn
		if column == "" {
			cats := ds.CategoricalColumns()
			if len(cats) == 0 {
				return fmt.Errorf("%w: no categorical columns, pass --column", analysis.ErrInsufficientColumns)
			}
			column = cats[0].Name
		}
		rows, err := analysis.TopCategories(ds, column, catTop)
		if err != nil {
			return err
		}
		out := []byte(analysis.CategoriesMarkdown(column, rows))
		if catJSON {
			payload := map[string]any{"column": column, "rows": rows}
			if out, err = json.MarshalIndent(payload, "", "  "); err != nil {
				return fmt.Errorf("marshal categories: %w", err)
			}
			out = append(out, '\n')
		}
		return emit(cmd.OutOrStdout(), catOutputPath, out, "categories")
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
	categoriesCmd.Flags().StringVarP(&catColumn, "column", "c", "", "column to profile (default: first categorical column)")
	categoriesCmd.Flags().IntVarP(&catTop, "top", "n", 0, "number of values to show")
	categoriesCmd.Flags().StringVarP(&catOutputPath, "output", "o", "", "optional path to write the table")
	categoriesCmd.Flags().BoolVar(&catJSON, "json", false, "print JSON instead of Markdown")
}
