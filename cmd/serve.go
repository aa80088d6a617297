package cmd

import (
	"fmt"

	"github.com/KaramelBytes/datalens/internal/server"
	"github.com/KaramelBytes/datalens/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveAddr    string
	serveDataDir string
	serveNoAI    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard JSON API",
	Long: `Run the dashboard HTTP API. Uploaded CSV files are stored under data_dir and
parsed again for every request. The narrative endpoint is enabled when the default
provider is usable (an API key is set, or the provider is ollama).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := config()
		addr := serveAddr
		if addr == "" {
			addr = c.ListenAddr
		}
		if addr == "" {
			addr = "127.0.0.1:8080"
		}
		dir := serveDataDir
		if dir == "" {
			dir = c.DataDir
		}
		if dir == "" {
			return fmt.Errorf("no data directory: set data_dir or pass --data-dir")
		}
		st, err := store.New(dir)
		if err != nil {
			return err
		}
		parse, err := parseOptions()
		if err != nil {
			return err
		}
		opts := server.Options{Parse: parse, MaxUploadBytes: c.MaxUploadBytes()}
		if !serveNoAI {
			n, err := newNarrator(c, c.DefaultProvider, narrativeOptions(c, c.DefaultProvider))
			if err != nil {
				logger.Warn("narrative endpoint disabled", zap.Error(err))
			} else {
				opts.Narrator = n
			}
		}
		logger.Info("starting dashboard API",
			zap.String("addr", addr),
			zap.String("data_dir", st.Dir()),
			zap.Bool("narrative", opts.Narrator != nil),
		)
		return server.New(st, opts, logger).ListenAndServe(cmd.Context(), addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, 127.0.0.1:8080)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "dataset storage directory (default from config)")
	serveCmd.Flags().BoolVar(&serveNoAI, "no-ai", false, "disable the narrative endpoint")
}
