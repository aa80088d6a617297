package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/KaramelBytes/datalens/internal/utils"
	"github.com/spf13/cobra"
)

var (
	anaOutputPath string
	anaJSON       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Summarize a CSV: shape, types, missing values, duplicates and outliers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		s := analysis.Summarize(ds)
		var out []byte
		if anaJSON {
			if out, err = json.MarshalIndent(s, "", "  "); err != nil {
				return fmt.Errorf("marshal summary: %w", err)
			}
			out = append(out, '\n')
		} else {
			out = []byte(s.Markdown())
		}
		return emit(cmd.OutOrStdout(), anaOutputPath, out, "analysis")
	},
}

// emit writes out to path when set, otherwise to w.
func emit(w io.Writer, path string, out []byte, what string) error {
	if path == "" {
		_, err := w.Write(out)
		return err
	}
	if err := utils.SafeWriteFile(path, out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(w, "✓ Wrote %s to %s\n", what, path)
	return nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the summary")
	analyzeCmd.Flags().BoolVar(&anaJSON, "json", false, "print the summary as JSON instead of Markdown")
}
