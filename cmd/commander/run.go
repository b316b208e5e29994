package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ormasoftchile/gcloud-commander/pkg/config"
	"github.com/ormasoftchile/gcloud-commander/pkg/replay"
	"github.com/ormasoftchile/gcloud-commander/pkg/runtime"
	"github.com/ormasoftchile/gcloud-commander/pkg/script"
	"github.com/ormasoftchile/gcloud-commander/pkg/scripts"
	"github.com/ormasoftchile/gcloud-commander/pkg/stream"
	"github.com/ormasoftchile/gcloud-commander/pkg/tui"
)

var (
	runVars        []string
	runRemote      string
	runRunner      string
	runInteractive bool
	runPlain       bool
	runSummaries   bool
	runRecord      string
	runRedactEnv   []string
)

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a script and show its steps",
	Long: `Run a script file (or "-" for stdin) or the stored script with that key.
Parameters come from --var, then interactive prompts with --interactive, then
the defaults found in the script.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	if runRunner != "" {
		os.Setenv("COMMANDER_RUNNER_URL", runRunner)
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	vars, err := parseVars(runVars)
	if err != nil {
		return err
	}
	name, content, err := loadScript(args[0], cfg.Server.ScriptsDir, cmd.InOrStdin())
	if err != nil {
		return err
	}

	if runInteractive {
		rl, err := tui.NewLineReader()
		if err != nil {
			return err
		}
		vars, err = tui.PromptInputs(rl, script.ExtractParameters(content), vars)
		rl.Close()
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		events    iter.Seq[stream.Event]
		summarize tui.SummaryFunc
		rec       *replay.Recorder
	)
	if runRemote != "" {
		if runRecord != "" {
			return fmt.Errorf("--record needs a local backend and cannot be combined with --remote")
		}
		client := tui.NewClient(runRemote)
		events, err = client.Execute(ctx, content, vars)
		if err != nil {
			return err
		}
		if runSummaries {
			summarize = client.Summarize
		}
	} else {
		executor, err := cfg.BuildBackend()
		if err != nil {
			return err
		}
		if runRecord != "" {
			rec = replay.NewRecorder(executor)
			rec.SetSecrets(append([]string{cfg.Summarizer.APIKeyEnv}, runRedactEnv...))
			executor = rec
		}
		engine, err := runtime.NewEngine(cfg.EngineConfig(logger), executor)
		if err != nil {
			return err
		}
		events = engine.Run(ctx, content, vars)
		if runSummaries && cfg.Summarizer.Endpoint != "" {
			summarizer, err := cfg.BuildSummarizer(logger)
			if err != nil {
				return err
			}
			summarize = func(ctx context.Context, log string) (string, error) {
				return summarizer.Summarize(ctx, log), nil
			}
		}
	}

	if runPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		p := &tui.Printer{Out: cmd.OutOrStdout(), Summarize: summarize}
		err = p.Print(ctx, events)
	} else {
		err = tui.Run(ctx, name, events, summarize)
	}
	if rec != nil {
		if werr := rec.WriteScenario(runRecord); werr != nil {
			return errors.Join(err, werr)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Scenario recorded to %s\n", runRecord)
	}
	return err
}

// loadScript reads ref as a file path, "-" for stdin, or a stored script key.
func loadScript(ref, scriptsDir string, stdin io.Reader) (name, content string, err error) {
	if ref == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return "stdin", string(data), nil
	}
	if info, statErr := os.Stat(ref); statErr == nil && !info.IsDir() {
		data, err := os.ReadFile(ref)
		if err != nil {
			return "", "", fmt.Errorf("read script: %w", err)
		}
		return strings.TrimSuffix(filepath.Base(ref), filepath.Ext(ref)), string(data), nil
	}
	sc, err := scripts.NewStore(scriptsDir, nil).Get(ref)
	if errors.Is(err, scripts.ErrNotFound) {
		return "", "", fmt.Errorf("%s is neither a file nor a stored script", ref)
	}
	if err != nil {
		return "", "", err
	}
	return sc.Name, sc.Content, nil
}

func init() {
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Set a parameter (key=value), repeatable")
	runCmd.Flags().StringVar(&runRemote, "remote", "", "Run through a commander server at this base URL")
	runCmd.Flags().StringVar(&runRunner, "runner", "", "Remote runner URL (selects the "+config.BackendRemote+" backend)")
	runCmd.Flags().BoolVarP(&runInteractive, "interactive", "i", false, "Prompt for parameters not given with --var")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "Print plain text instead of the interactive view (implied when stdout is not a terminal)")
	runCmd.Flags().BoolVar(&runSummaries, "summaries", true, "Request a summary of each step")
	runCmd.Flags().StringVar(&runRecord, "record", "", "Save the backend responses as a mock scenario to this file")
	runCmd.Flags().StringArrayVar(&runRedactEnv, "redact-env", nil, "Env var whose value is redacted from the recording, repeatable")
}
