package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/spf13/cobra"
)

var (
	descOutputPath string
	descJSON       bool
)

var describeCmd = &cobra.Command{
	Use:   "describe <file>",
	Short: "Print count, mean, std, min, quartiles and max of every numeric column",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		t, err := analysis.Describe(ds)
		if err != nil {
			return err
		}
		out := []byte(t.Markdown())
		if descJSON {
			if out, err = json.MarshalIndent(t, "", "  "); err != nil {
				return fmt.Errorf("marshal describe: %w", err)
			}
			out = append(out, '\n')
		}
		return emit(cmd.OutOrStdout(), descOutputPath, out, "describe table")
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringVarP(&descOutputPath, "output", "o", "", "optional path to write the table")
	describeCmd.Flags().BoolVar(&descJSON, "json", false, "print JSON instead of Markdown")
}
