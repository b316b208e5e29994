// Package main provides the commander-mcp binary: MCP server for AI agents
// over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/gcloud-commander/pkg/config"
	"github.com/ormasoftchile/gcloud-commander/pkg/logging"
	cmcp "github.com/ormasoftchile/gcloud-commander/pkg/mcp"
	"github.com/ormasoftchile/gcloud-commander/pkg/scripts"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run serves until stdin closes. The config file comes from
// COMMANDER_CONFIG, falling back to commander.yaml; logs go to stderr since
// stdout carries the protocol.
func run() error {
	cfg, err := config.Resolve(os.Getenv("COMMANDER_CONFIG"))
	if err != nil {
		return err
	}
	logger, err := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	engine, err := cfg.BuildEngine(logger)
	if err != nil {
		return err
	}
	s, err := cmcp.NewServer(version, &cmcp.Handlers{
		Engine:  engine,
		Scripts: scripts.NewStore(cfg.Server.ScriptsDir, logger),
	})
	if err != nil {
		return err
	}
	return server.ServeStdio(s)
}
