package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/KaramelBytes/datalens/internal/export"
	"github.com/KaramelBytes/datalens/internal/utils"
	"github.com/spf13/cobra"
)

var (
	expFormat string
	expOutDir string
	expOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the dataset as CSV, JSON records or an xlsx workbook",
	Long: `Write the dataset as CSV, JSON records or an xlsx workbook with one "Data" sheet.
The file is named <stem>_processed.<ext> unless --output is given.`,
	Example: `  datalens export sales.csv --format xlsx
  datalens export sales.csv --format json --out-dir ./exports`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := export.ParseFormat(expFormat)
		if err != nil {
			return err
		}
		ds, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		p, err := export.NewSerializer().Export(ds, f)
		if err != nil {
			return err
		}
		path := expOutput
		if path == "" {
			if err := utils.EnsureDir(expOutDir); err != nil {
				return err
			}
			path = filepath.Join(expOutDir, p.Filename)
		}
		if err := utils.SafeWriteFile(path, p.Data); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d rows to %s\n", ds.Rows(), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&expFormat, "format", "f", "csv", "csv | json | xlsx")
	exportCmd.Flags().StringVar(&expOutDir, "out-dir", ".", "directory for the exported file")
	exportCmd.Flags().StringVarP(&expOutput, "output", "o", "", "exact output path (overrides --out-dir)")
}
