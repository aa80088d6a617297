package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/KaramelBytes/datalens/internal/ai"
	cfgpkg "github.com/KaramelBytes/datalens/internal/config"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
	envFile string

	// Parsing flags shared by every command that reads a CSV.
	flagDelimiter string
	flagDecimal   string
	flagThousands string
	flagMaxRows   int

	// Loaded configuration
	cfg    *cfgpkg.Global
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "datalens",
	Short: "datalens: summarize, correlate, chart and export CSV data",
	Long: `datalens reads a CSV file and reports its shape, missing values, duplicates,
outliers, correlations and category frequencies. It renders charts, exports the data as
CSV, JSON or xlsx, and can ask a language model to describe the dataset.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	// Commands see the cancellation through cmd.Context().
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Runs before every command execution.
	cobra.OnInitialize(loadConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.datalens/config.yaml)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.StringVar(&envFile, "env-file", "", "dotenv file loaded before the config (default .env)")
	pf.StringVar(&flagDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (default by extension)")
	pf.StringVar(&flagDecimal, "decimal", "", "decimal separator for numbers: '.'|'comma'")
	pf.StringVar(&flagThousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space'")
	pf.IntVar(&flagMaxRows, "max-rows", 0, "maximum rows to read (0 = config max_rows, unlimited if unset)")
}

func loadConfig() {
	var paths []string
	if envFile != "" {
		paths = append(paths, envFile)
	}
	if err := cfgpkg.LoadDotEnv(paths...); err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
	}
	logger = newLogger(debug)

	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: analysis commands work without a config file.
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c
	if cfg.ModelsCatalogFile != "" {
		m, err := ai.LoadCatalogFromJSON(cfg.ModelsCatalogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠ Warning: models catalog %s: %v\n", cfg.ModelsCatalogFile, err)
			return
		}
		ai.MergeCatalog(m)
		logger.Debug("merged model catalog", zap.String("file", cfg.ModelsCatalogFile), zap.Int("models", len(m)))
	}
}

func newLogger(debug bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: logger: %v\n", err)
		return zap.NewNop()
	}
	return l
}

// config returns the loaded configuration, or defaults when loading failed.
func config() *cfgpkg.Global {
	if cfg != nil {
		return cfg
	}
	return &cfgpkg.Global{DefaultProvider: ai.ProviderOpenRouter, MaxTokens: 1024, Temperature: 0.3}
}

// parseOptions builds dataset.ParseOptions from the persistent flags.
func parseOptions() (dataset.ParseOptions, error) {
	var opt dataset.ParseOptions
	switch flagDelimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	case "|", "pipe":
		opt.Delimiter = '|'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", flagDelimiter)
	}
	switch strings.ToLower(strings.TrimSpace(flagDecimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", flagDecimal)
	}
	switch strings.ToLower(strings.TrimSpace(flagThousands)) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", flagThousands)
	}
	opt.MaxRows = flagMaxRows
	if opt.MaxRows <= 0 {
		opt.MaxRows = config().MaxRows
	}
	return opt, nil
}

// loadDataset parses the CSV at path with the persistent parsing flags.
func loadDataset(path string) (*dataset.Dataset, error) {
	opt, err := parseOptions()
	if err != nil {
		return nil, err
	}
	ds, err := dataset.ParseFile(path, opt)
	if err != nil {
		return nil, err
	}
	logger.Debug("parsed dataset",
		zap.String("path", path),
		zap.Int("rows", ds.Rows()),
		zap.Int("columns", len(ds.Columns())),
	)
	for _, w := range ds.Warnings() {
		logger.Warn("dataset warning", zap.String("path", path), zap.String("warning", w))
	}
	return ds, nil
}

// runtimeConfig builds the provider config from the loaded configuration.
// Narrative calls are not retried.
func runtimeConfig(c *cfgpkg.Global, provider string) ai.RuntimeConfig {
	rc := ai.RuntimeConfig{
		HTTPTimeout: time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMax:    1,
		APIKey:      c.APIKeyFor(provider),
	}
	if provider == ai.ProviderOllama {
		rc.Host = c.OllamaHost
	}
	return rc
}
