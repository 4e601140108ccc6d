// Command npcli loads an NPPES release and reports on, queries, exports or
// serves it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nppestool/config"
	"nppestool/npdata"
	"nppestool/telemetry"
)

// Process exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitNoResults = 2
	exitExport    = 3
)

// exitError carries the process exit code for a failed command. err may be
// nil when there is nothing more to report, e.g. an empty query result.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error { return &exitError{code: code, err: err} }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

// app holds what every subcommand shares once the config is read.
type app struct {
	configPath string
	dataDir    string
	logLevel   string

	cfg     *config.Config
	logger  *zap.Logger
	metrics *telemetry.Metrics
	tracing *telemetry.Tracing
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "npcli",
		Short:         "Load, query and export NPPES provider data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (YAML, JSON or TOML)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "directory holding the NPPES CSV files (overrides NPPES_DATA_DIR)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides NPPES_LOG_LEVEL)")

	root.AddCommand(statsCmd(a))
	root.AddCommand(queryCmd(a))
	root.AddCommand(exportCmd(a))
	root.AddCommand(downloadCmd(a))
	root.AddCommand(serveCmd(a))
	root.AddCommand(loadPGCmd(a))
	root.AddCommand(publishCmd(a))
	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fail(exitFailure, err)
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return fail(exitFailure, fmt.Errorf("create logger: %w", err))
	}
	a.logger = logger
	a.metrics = telemetry.New()

	tcfg := telemetry.DefaultTracingConfig("npcli")
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	a.tracing, err = telemetry.InitTracing(ctx, tcfg)
	if err != nil {
		return fail(exitFailure, fmt.Errorf("init tracing: %w", err))
	}
	return nil
}

func (a *app) close() {
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("tracing shutdown", zap.Error(err))
		}
		cancel()
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}

// open loads the dataset in the configured data directory.
func (a *app) open(ctx context.Context, progress io.Writer) (*npdata.Dataset, error) {
	opts := a.cfg.LoadOptions(a.logger)
	opts.Observer = a.metrics
	if a.cfg.Progress {
		opts.Progress = func(p npdata.Progress) {
			fmt.Fprintf(progress, "  %s: %d rows, %s read (%s)\n",
				p.File, p.Rows, npdata.FormatBytes(p.Bytes), p.Elapsed.Round(time.Second))
		}
	}
	start := time.Now()
	ds, err := npdata.FromDirectory(ctx, a.cfg.DataDir, opts)
	if err != nil {
		return nil, fail(exitFailure, err)
	}
	a.metrics.SetProviders(ds.Len())
	a.logger.Info("dataset loaded",
		zap.String("dir", a.cfg.DataDir),
		zap.Int("providers", ds.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return ds, nil
}

func main() {
	a := &app{}
	root := newRootCmd(a)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	a.close()

	code := exitCode(err)
	if err != nil && code != exitNoResults {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ne *npdata.Error
		if errors.As(err, &ne) {
			if s := ne.Suggestion(); s != "" {
				fmt.Fprintf(os.Stderr, "Hint: %s\n", s)
			}
		}
	}
	os.Exit(code)
}
