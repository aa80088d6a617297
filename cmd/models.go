package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/KaramelBytes/datalens/internal/ai"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model catalog used for prompt-size checks",
	Example: `  datalens models show
  datalens models sync --file ./models.json
  datalens models recommend --provider anthropic --tier cheap`,
}

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		keys := make([]string, 0, len(cat))
		for k := range cat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := cmd.OutOrStdout()
		for _, k := range keys {
			mi := cat[k]
			fmt.Fprintf(out, "%-36s ctx=%-8d in=$%.5f/1K out=$%.5f/1K\n", k, mi.ContextTokens, mi.InputPerK, mi.OutputPerK)
		}
		return nil
	},
}

var syncPath string

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge model catalog/pricing from a JSON file and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		ai.MergeCatalog(m)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	},
}

var (
	recProvider string
	recTier     string
)

var modelsRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend a model for a provider and tier (cheap | balanced | high-context)",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, ok := ai.RecommendModel(recProvider, recTier)
		if !ok {
			return fmt.Errorf("no recommendation for provider %q tier %q", recProvider, recTier)
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd, modelsSyncCmd, modelsRecommendCmd)

	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
	modelsRecommendCmd.Flags().StringVar(&recProvider, "provider", "", "provider (default openrouter)")
	modelsRecommendCmd.Flags().StringVar(&recTier, "tier", "balanced", "cheap | balanced | high-context")
}
