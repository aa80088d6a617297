package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/KaramelBytes/datalens/internal/ai"
	"github.com/KaramelBytes/datalens/internal/analysis"
	cfgpkg "github.com/KaramelBytes/datalens/internal/config"
	"github.com/KaramelBytes/datalens/internal/narrative"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	askProvider    string
	askModel       string
	askMaxTokens   int
	askTemperature float64
	askStream      bool
	askPrintPrompt bool
)

var askCmd = &cobra.Command{
	Use:   "ask <file> [question...]",
	Short: "Ask a language model to describe the dataset",
	Long: `Summarize the dataset and send the summary with your question to the configured
provider (openrouter, openai, anthropic or ollama). Without a question the model is asked
for a general overview, data quality issues and suggested next steps.`,
	Example: `  datalens ask sales.csv
  datalens ask sales.csv "Which regions underperform?" --provider anthropic
  datalens ask sales.csv --provider ollama --model llama3.1:8b --stream`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		question := strings.TrimSpace(strings.Join(args[1:], " "))
		s := analysis.Summarize(ds)
		if askPrintPrompt {
			fmt.Fprint(cmd.OutOrStdout(), narrative.BuildPrompt(s, question))
			return nil
		}

		c := config()
		provider := askProvider
		if provider == "" {
			provider = c.DefaultProvider
		}
		opts := narrativeOptions(c, provider)
		if askModel != "" {
			opts.Model = askModel
		}
		if cmd.Flags().Changed("max-tokens") {
			opts.MaxTokens = askMaxTokens
		}
		if cmd.Flags().Changed("temperature") {
			opts.Temperature = askTemperature
		}
		n, err := newNarrator(c, provider, opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if askStream {
			if err := n.Stream(cmd.Context(), s, question, func(d string) { fmt.Fprint(out, d) }); err != nil {
				return err
			}
			fmt.Fprintln(out)
			return nil
		}
		text, err := n.Summarize(cmd.Context(), s, question)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
		return nil
	},
}

func narrativeOptions(c *cfgpkg.Global, provider string) narrative.Options {
	opts := narrative.Options{
		Provider:    provider,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Timeout:     time.Duration(c.NarrativeTimeoutSec) * time.Second,
	}
	// The configured default model belongs to the default provider.
	if provider == c.DefaultProvider {
		opts.Model = c.DefaultModel
	}
	return opts
}

// newNarrator resolves the provider runtime. Hosted providers need an API key.
func newNarrator(c *cfgpkg.Global, provider string, opts narrative.Options) (*narrative.Narrator, error) {
	if provider != ai.ProviderOllama && c.APIKeyFor(provider) == "" {
		return nil, fmt.Errorf("%w: %w for provider %q (set it with 'datalens config set' or %s_* env vars)",
			narrative.ErrServiceUnavailable, ai.ErrMissingAPIKey, provider, cfgpkg.EnvPrefix)
	}
	rt, ok := ai.GetRuntime(provider, runtimeConfig(c, provider))
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (use %s)", provider, strings.Join(ai.Providers(), ", "))
	}
	logger.Debug("narrative runtime", zap.String("provider", provider), zap.String("model", opts.Model))
	return narrative.New(rt, opts, logger), nil
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askProvider, "provider", "", "openrouter | openai | anthropic | ollama (default from config)")
	askCmd.Flags().StringVar(&askModel, "model", "", "model name (default from config or provider)")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "completion token limit (overrides config)")
	askCmd.Flags().Float64Var(&askTemperature, "temperature", 0, "sampling temperature (overrides config)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it arrives")
	askCmd.Flags().BoolVar(&askPrintPrompt, "print-prompt", false, "print the prompt and exit without calling a model")
}
