package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/gcloud-commander/pkg/config"
	"github.com/ormasoftchile/gcloud-commander/pkg/providers"
	"github.com/ormasoftchile/gcloud-commander/pkg/scripts"
	"github.com/ormasoftchile/gcloud-commander/pkg/serve"
)

var (
	serveAddr       string
	serveScriptsDir string
	serveNoSeed     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API. POST /api/execute streams a run as
newline-delimited JSON step events; the other routes manage stored scripts,
parameters, flow diagrams, summaries and project information.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveScriptsDir != "" {
		cfg.Server.ScriptsDir = serveScriptsDir
	}

	engine, err := cfg.BuildEngine(logger)
	if err != nil {
		return err
	}
	summarizer, err := cfg.BuildSummarizer(logger)
	if err != nil {
		return err
	}
	store := scripts.NewStore(cfg.Server.ScriptsDir, logger)
	if !serveNoSeed {
		n, err := store.SeedBuiltins()
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("seeded built-in scripts", "count", n, "dir", cfg.Server.ScriptsDir)
		}
	}

	srv, err := serve.New(serve.Dependencies{
		Engine:     engine,
		Scripts:    store,
		Summarizer: summarizer,
		Projects:   projectsExecutor(cfg),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("listening", "addr", cfg.Server.Addr, "backend", cfg.Execution.Backend, "mode", engine.Mode())
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

// projectsExecutor returns the executor used for project lookups. Simulated
// backends cannot answer them, so the route is disabled for those.
func projectsExecutor(cfg *config.Config) providers.CommandExecutor {
	switch cfg.Execution.Backend {
	case config.BackendLocal, config.BackendRemote:
		exec, err := cfg.BuildBackend()
		if err != nil {
			return nil
		}
		return exec
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveScriptsDir, "scripts-dir", "", "Stored scripts directory (overrides server.scripts_dir)")
	serveCmd.Flags().BoolVar(&serveNoSeed, "no-seed", false, "Do not seed built-in scripts into an empty directory")
}
