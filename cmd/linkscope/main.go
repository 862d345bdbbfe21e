package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alvmarrod/linkscope/internal/config"
	"github.com/alvmarrod/linkscope/internal/metrics"
	"github.com/alvmarrod/linkscope/internal/pipeline"
	"github.com/alvmarrod/linkscope/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := newRootCmd().Execute(); err != nil {
		logrus.Errorf("linkscope failed: %v", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "linkscope",
		Short:         "Discover and aggregate cross-domain links from web captures",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			level, _ := logrus.ParseLevel(cfg.LogLevel)
			logrus.SetLevel(level)
			a.cfg = cfg

			logrus.Infof("Linkscope v%s starting...", version)
			logrus.Infof("Configuration loaded: archive=%s, db=%s, workers=%d",
				cfg.ArchiveDir, cfg.DBDriver, cfg.EnrichWorkers)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to the JSON config file (default ./config.json)")

	root.AddCommand(
		a.runCmd(),
		a.extractCmd(),
		a.aggregateCmd(),
		a.reportCmd(),
		a.captureCmd(),
	)
	return root
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Extract links, aggregate sites and export metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
				return p.Run(ctx)
			})
		},
	}
}

func (a *app) extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Extract external links from the archive directory into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
				return p.Extract(ctx)
			})
		},
	}
}

func (a *app) aggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate and enrich every stored link into a new run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
				_, err := p.Aggregate(ctx)
				if err == nil {
					logrus.Infof("Aggregates stored under run %s", p.RunID())
				}
				return err
			})
		},
	}
}

func (a *app) reportCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export the metrics summary of a run (latest by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
				_, err := p.Report(ctx, runID)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run ID to report")
	return cmd
}

// withPipeline opens the store, runs fn with signal-aware context and
// writes the run summary whatever the outcome
func (a *app) withPipeline(parent context.Context, fn func(context.Context, *pipeline.Pipeline) error) error {
	ctx, stop := signalContext(parent)
	defer stop()

	store, err := storage.NewStorage(a.cfg.DBDriver, a.cfg.DBDSN)
	if err != nil {
		return err
	}
	defer store.Close()
	logrus.Infof("Database initialized: %s", a.cfg.DBDriver)

	tracker := metrics.NewTracker(pipeline.NewRunID())
	shutdownMetrics := serveMetrics(a.cfg.MetricsAddr, tracker)
	defer shutdownMetrics()

	p, err := pipeline.New(a.cfg, store, tracker)
	if err != nil {
		return err
	}

	runErr := fn(ctx, p)

	logrus.Info("Final stats: " + tracker.LogProgress())
	if err := tracker.WriteToFile(a.cfg.MetricsPath, terminationReason(ctx, runErr)); err != nil {
		logrus.Errorf("Failed to write metrics: %v", err)
	} else {
		logrus.Infof("Metrics written to %s", a.cfg.MetricsPath)
	}

	return runErr
}

func terminationReason(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "completed"
	case ctx.Err() != nil:
		return "signal"
	default:
		return "error"
	}
}

// signalContext cancels on SIGINT/SIGTERM; a second signal forces exit
func signalContext(parent context.Context) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logrus.Infof("Received signal: %v, initiating graceful shutdown...", sig)
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigChan:
			logrus.Warnf("Received second signal (%v) - forcing immediate exit!", sig)
			os.Exit(1)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		close(done)
		cancel()
	}
}

// serveMetrics exposes the tracker on addr; an empty addr disables it
func serveMetrics(addr string, tracker *metrics.Tracker) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", tracker.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logrus.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("Metrics server failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logrus.Warnf("Metrics server shutdown: %v", err)
		}
	}
}
