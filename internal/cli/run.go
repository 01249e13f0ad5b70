package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atrius/attribution/internal/attribution"
	"github.com/atrius/attribution/internal/config"
	"github.com/atrius/attribution/internal/debugreport"
	"github.com/atrius/attribution/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Limits   string
	Once     bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process pending triggers until the queue drains",
		Long: `Run attribution passes over the pending trigger queue.

Each pass handles up to the configured batch cap of triggers, one
transaction per trigger. Passes repeat until the queue drains, unless
--once limits the run to a single pass.

Example:
  attrib run --db ./measurement.db
  attrib run --db /tmp/test.db --limits ./limits.yaml --once --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttribution(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Limits, "limits", "", "path to limits YAML (defaults used when omitted)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single pass instead of draining the queue")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runAttribution(cmd *cobra.Command, opts *RunOptions) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	limits := config.DefaultLimits()
	if opts.Limits != "" {
		var err error
		if limits, err = config.Load(opts.Limits); err != nil {
			return WrapExitError(ExitCommandError, "failed to load limits", err)
		}
	}

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	engine := attribution.New(st, limits,
		attribution.WithLogger(logger),
		attribution.WithDebugRecorder(debugreport.New(logger)),
	)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after current pass", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	passes := 0
	drained := false
	for {
		passes++
		drained, err = engine.PerformPendingAttributions(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "attribution pass aborted", err)
		}
		if drained || opts.Once || ctx.Err() != nil {
			break
		}
	}

	stats := engine.Stats()
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Summary(PassSummary{
		Passes:           passes,
		Attempted:        stats.Attempted.Load(),
		Attributed:       stats.Attributed.Load(),
		Ignored:          stats.Ignored.Load(),
		AlreadyHandled:   stats.AlreadyHandled.Load(),
		EventReports:     stats.EventReports.Load(),
		AggregateReports: stats.AggregateReports.Load(),
		Drained:          drained,
	})
}
