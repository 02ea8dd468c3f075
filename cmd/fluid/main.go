// Command fluid turns natural-language tasks into API calls from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/fluid-api/internal/config"
	"github.com/bizmatters/agent-builder/fluid-api/internal/docs"
	"github.com/bizmatters/agent-builder/fluid-api/internal/llm"
	"github.com/bizmatters/agent-builder/fluid-api/internal/logging"
	"github.com/bizmatters/agent-builder/fluid-api/internal/metrics"
	"github.com/bizmatters/agent-builder/fluid-api/internal/orchestration"
)

var (
	// Global flags
	verbose    bool
	model      string
	provider   string
	configPath string
	logFile    string

	// Set in PersistentPreRunE, released in PersistentPostRun
	logger *zap.Logger
	flush  func()
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fluid",
	Short: "Turn natural-language tasks into API calls",
	Long: `fluid asks a text generator to draft an HTTP request for a task,
validates the draft, executes it against the third-party API and prints
the response envelope as JSON.

Settings come from flags, the environment (.env is loaded when present)
and an optional YAML file named by --config or FLUID_CONFIG.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if flush != nil {
			flush()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging and print trace spans to stderr")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "Model used by the text generator")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "Text generator provider (openai, gemini)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")

	rootCmd.AddCommand(runCmd, batchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv("."); err != nil {
		return err
	}

	overrides := config.Overrides{}
	flags := cmd.Flags()
	if flags.Changed("verbose") {
		overrides.Verbose = &verbose
	}
	if flags.Changed("model") {
		overrides.Model = &model
	}
	if flags.Changed("provider") {
		overrides.Provider = &provider
	}
	if flags.Changed("log-file") {
		overrides.LogFile = &logFile
	}

	var err error
	cfg, err = config.Load(configPath, overrides, nil)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, flush, err = logging.New(logging.Options{Verbose: cfg.Verbose, File: cfg.LogFile})
	if err != nil {
		return err
	}

	if cfg.Verbose {
		if err := initTracer(); err != nil {
			return err
		}
	}
	return nil
}

// newOrchestrator wires a generator, metrics and options for one invocation
func newOrchestrator(ctx context.Context, docPaths []string, raw bool) (*orchestration.Orchestrator, error) {
	generator, err := llm.New(ctx, cfg.LLM(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize text generator: %w", err)
	}

	opts := cfg.Options(docs.Load(logger, docPaths...), raw)
	taskMetrics, err := metrics.NewTaskMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	opts.Metrics = taskMetrics

	orchestrator := orchestration.NewOrchestrator(generator, opts, logger)
	logger.Debug("orchestrator ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", generator.Model()),
		zap.Int("documentation_bytes", len(opts.Documentation)),
		zap.String("system_prompt", orchestrator.SystemPrompt()),
	)
	return orchestrator, nil
}

// initTracer sends spans to stderr so stdout only carries envelopes
func initTracer() error {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	return nil
}
