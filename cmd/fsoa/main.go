// Command fsoa is the field-service operations agent: it polls opportunity
// data, evaluates business-hour SLA deadlines, and dispatches deduplicated,
// throttled, escalating chat notifications.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/franksunye/fsoa-agent/internal/dashboard"
)

const defaultPIDFile = "fsoa-scheduler.pid"

var bootstrapPath string

func main() {
	root := &cobra.Command{
		Use:   "fsoa",
		Short: "Field-service operations agent",
	}
	root.PersistentFlags().StringVar(&bootstrapPath, "config", "fsoa.toml", "path to the TOML bootstrap file")

	root.AddCommand(
		runOnceCmd(),
		startSchedulerCmd(),
		stopSchedulerCmd(),
		showHealthCmd(),
		cleanupTasksCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runOnceCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Execute a single pipeline pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			core, err := buildCore(ctx, bootstrapPath)
			if err != nil {
				return err
			}
			result, err := core.Orchestrator.Execute(ctx, dryRun)
			if err != nil {
				return err
			}
			core.Log.WithField("run_id", result.RunID).WithField("status", result.Status).Info("run-once finished")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate and create tasks but do not dispatch webhooks")
	return cmd
}

func startSchedulerCmd() *cobra.Command {
	var httpAddr string
	var pidFile string
	cmd := &cobra.Command{
		Use:   "start-scheduler",
		Short: "Run the periodic trigger and dashboard HTTP surface until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// stop-scheduler runs as a separate process invocation and has
			// no handle on this one, so it signals it by PID instead.
			if err := writePIDFile(pidFile); err != nil {
				return err
			}
			defer removePIDFile(pidFile)

			core, err := buildCore(ctx, bootstrapPath)
			if err != nil {
				return err
			}
			sched, err := core.newScheduler(ctx)
			if err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			router := chi.NewRouter()
			router.Handle("/metrics", promhttp.Handler())
			router.Mount("/", dashboard.New(core.Backend, healthAdapter{core.Orchestrator}).Router())

			srv := &http.Server{Addr: httpAddr, Handler: router}
			go func() {
				core.Log.WithField("addr", httpAddr).Info("dashboard listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					core.Log.WithField("error", err.Error()).Error("dashboard server stopped")
				}
			}()

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "address the dashboard/metrics HTTP server listens on")
	cmd.Flags().StringVar(&pidFile, "pid-file", defaultPIDFile, "where to record this process's PID for stop-scheduler")
	return cmd
}

func stopSchedulerCmd() *cobra.Command {
	var pidFile string
	cmd := &cobra.Command{
		Use:   "stop-scheduler",
		Short: "Signal a running start-scheduler process to shut down gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := readPIDFile(pidFile)
			if err != nil {
				return fmt.Errorf("reading pid file %q: %w (is start-scheduler running?)", pidFile, err)
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signaling pid %d: %w", pid, err)
			}
			fmt.Printf("sent SIGTERM to scheduler process %d\n", pid)
			return nil
		},
	}
	cmd.Flags().StringVar(&pidFile, "pid-file", defaultPIDFile, "pid file written by start-scheduler")
	return cmd
}

func showHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-health",
		Short: "Print the current health report as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			core, err := buildCore(ctx, bootstrapPath)
			if err != nil {
				return err
			}
			report := core.Orchestrator.Health(ctx)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func cleanupTasksCmd() *cobra.Command {
	var maxAgeDays int
	cmd := &cobra.Command{
		Use:   "cleanup-tasks",
		Short: "Delete Sent/Failed notification tasks older than --max-age-days",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			core, err := buildCore(ctx, bootstrapPath)
			if err != nil {
				return err
			}
			n, err := core.Notifier.CleanupOldTasks(ctx, time.Duration(maxAgeDays)*24*time.Hour, time.Now())
			if err != nil {
				return err
			}
			core.Log.WithField("deleted", n).Info("cleanup-tasks finished")
			return nil
		},
	}
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 30, "delete Sent/Failed tasks older than this many days")
	return cmd
}
