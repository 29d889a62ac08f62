// ============================================================================
// LSSEFT CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra commands for running, serving and inspecting the cache.
//
// Command Structure:
//   lsseft                         # Root command
//   ├── run                        # Compute everything still missing
//   │   ├── --mode                 # standalone (in-process workers) | master
//   │   └── --listen               # gRPC listen address (master mode)
//   ├── worker                     # Serve a remote master over gRPC
//   │   └── --master               # Master address
//   ├── status                     # Missing counts per family, no writes
//   ├── --config, -c               # Config file (YAML, or TOML by extension)
//   └── --version
//
// Signal Handling:
//   SIGINT and SIGTERM cancel the run context. The current phase fails, no
//   partial row is committed, and the next run picks up what is missing.
//
// Metrics Service:
//   With metrics.enabled the run command serves /metrics on metrics.listen
//   for the lifetime of the run.
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/config"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/controller"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/kernels"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/logger"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/metrics"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/tasks"
)

// Version is stamped at build time.
var Version = "0.1.0"

var configFile string

// ErrUnknownMode is returned for a --mode other than standalone or master.
var ErrUnknownMode = errors.New("mode must be standalone or master")

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lsseft",
		Short: "LSSEFT: distributed one-loop EFT power spectra with an incremental cache",
		Long: `LSSEFT computes redshift-space one-loop power spectra over a grid of
wavenumbers, cutoffs, resummation scales and redshifts.
- results are cached in SQLite, MySQL or PostgreSQL
- reruns compute only what is missing
- work is spread over in-process or remote gRPC workers`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/lsseft.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildWorkerCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// ============================================================================
// run
// ============================================================================

func buildRunCommand() *cobra.Command {
	var mode, listen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a run and compute every missing result",
		Long:  "Start a run in standalone mode (in-process workers) or master mode (remote gRPC workers)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runSystem(ctx, cmd.OutOrStdout(), mode, listen)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "standalone or master (default from transport.mode)")
	cmd.Flags().StringVar(&listen, "listen", "", "gRPC listen address in master mode")

	return cmd
}

func applyMode(cfg *config.Config, mode, listen string) error {
	switch mode {
	case "":
	case "standalone":
		cfg.Transport.Mode = config.ModeLocal
	case "master":
		cfg.Transport.Mode = config.ModeGRPC
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if listen != "" {
		cfg.Transport.Listen = listen
	}
	return nil
}

func runSystem(ctx context.Context, out io.Writer, mode, listen string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyMode(cfg, mode, listen); err != nil {
		return err
	}
	logger.Init(&cfg.Log)
	defer logger.Sync()

	opts := []controller.Option{controller.WithKernels(kernels.Reference{})}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		opts = append(opts, controller.WithMetrics(metrics.NewCollector(reg)))
		go func() {
			logger.Info("metrics server listening", zap.String("listen", cfg.Metrics.Listen))
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, reg); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	ctrl, err := controller.New(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	defer ctrl.Close()

	logger.Info("starting run",
		zap.String("run", ctrl.RunID()),
		zap.String("mode", cfg.Transport.Mode),
		zap.Int("workers", cfg.Workers.Count))

	summary, err := ctrl.Run(ctx)
	if err != nil {
		logger.Error("run failed", zap.String("run", ctrl.RunID()), zap.Error(err))
		return err
	}

	fmt.Fprintf(out, "run %s finished in %s\n", summary.RunID, summary.Took.Round(time.Millisecond))
	for _, kind := range tasks.Phases {
		fam, _ := tasks.FamilyOf(kind)
		fmt.Fprintf(out, "  %-14s %6d computed\n", fam.Name, summary.Items[fam.Name])
	}
	return nil
}

// ============================================================================
// worker
// ============================================================================

func buildWorkerCommand() *cobra.Command {
	var masterAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start a worker that serves a remote master",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runWorkerNode(ctx, masterAddr)
		},
	}

	cmd.Flags().StringVar(&masterAddr, "master", "", "master address (default from transport.master)")
	return cmd
}

func runWorkerNode(ctx context.Context, masterAddr string) error {
	cfg := &config.Config{}
	if _, err := os.Stat(configFile); err == nil {
		if cfg, err = config.Read(configFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		cfg.ApplyDefaults()
	}
	if masterAddr != "" {
		cfg.Transport.Master = masterAddr
	}
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	logger.Init(&cfg.Log)
	defer logger.Sync()

	logger.Info("connecting to master", zap.String("master", cfg.Transport.Master))
	return controller.RunWorker(ctx, cfg.Transport.Master, kernels.Reference{})
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache status per family",
		Long:  "Count the tuples still missing for the configured grid without computing or deleting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context(), cmd.OutOrStdout())
		},
	}
	return cmd
}

func showStatus(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Store.LogLevel = "silent"
	logger.Init(&cfg.Log)

	ctrl, err := controller.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer ctrl.Close()

	status, err := ctrl.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Config:  %s\n", configFile)
	fmt.Fprintf(out, "Store:   %s %s\n", cfg.Store.Driver, cfg.Store.DSN)
	fmt.Fprintf(out, "Model:   %s (omega_m=%g omega_cc=%g h=%g)\n", cfg.Model.Name, cfg.Model.OmegaM, cfg.Model.OmegaCC, cfg.Model.H)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%-14s %10s %10s\n", "FAMILY", "REQUIRED", "MISSING")
	total := 0
	for _, s := range status {
		fmt.Fprintf(out, "%-14s %10d %10d\n", s.Family, s.Required, s.Missing)
		total += s.Missing
	}
	fmt.Fprintln(out)
	if total == 0 {
		fmt.Fprintln(out, "cache complete")
	} else {
		fmt.Fprintf(out, "%d tuples missing; run 'lsseft run' to compute them\n", total)
	}
	return nil
}
