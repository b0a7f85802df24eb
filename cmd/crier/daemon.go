package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	crier "github.com/matthewjhunter/crier"
	"github.com/matthewjhunter/crier/internal/output"
)

func daemonCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the auto-publish, queue flush and engagement ticks on their intervals",
		Long: `Runs every periodic tick until interrupted. Each tick kind has its own
interval from the scheduler config; a tick still running when its next fire
comes around is skipped. Handles SIGINT/SIGTERM for graceful shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine("crier-daemon")
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var srv *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", engine.MetricsHandler())
				srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						formatter.Warning("metrics server: %v", err)
					}
				}()
			}

			formatter.Success("crier daemon: auto-publish every %s, flush every %s, engagement every %s",
				cfg.Scheduler.AutoPublishInterval, cfg.Scheduler.FlushInterval, cfg.Scheduler.EngagementInterval)

			err = engine.Run(ctx)
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}
			if errors.Is(err, context.Canceled) {
				formatter.Success("crier daemon: stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "tick <auto_publish|queue_flush|engagement>",
		Short:     "Run one guarded tick and exit (for cron-driven deployments)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"auto_publish", "queue_flush", "engagement"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *crier.Engine) error {
				rep, err := e.RunTick(cmd.Context(), args[0])
				if errors.Is(err, crier.ErrTickSkipped) {
					formatter.Warning("%s tick skipped: another run holds the lease", args[0])
					return nil
				}
				if err != nil {
					return err
				}
				return formatter.OutputTickSummary(summarize(rep))
			})
		},
	}
}

// summarize flattens a tick report for the formatter.
func summarize(rep *crier.TickReport) *output.TickSummary {
	s := &output.TickSummary{Kind: rep.Kind, Duration: rep.Duration}
	switch {
	case rep.AutoPublish != nil:
		s.Tenants = len(rep.AutoPublish.Tenants)
		for _, t := range rep.AutoPublish.Tenants {
			if t.Skipped != "" {
				s.Skipped++
				continue
			}
			s.Posted += t.Posted
			s.Failed += t.Failed
			for _, r := range t.Results {
				if r.Error != "" {
					s.Errors = append(s.Errors, fmt.Sprintf("%s: %s", t.TenantID, r.Error))
				}
			}
		}
	case rep.Flush != nil:
		s.Due = rep.Flush.Due
		s.Posted = rep.Flush.Posted
		s.Failed = rep.Flush.Failed
		s.Skipped = rep.Flush.Skipped
		if rep.Flush.Errors > 0 {
			s.Errors = append(s.Errors, fmt.Sprintf("%d items errored during dispatch", rep.Flush.Errors))
		}
	case rep.Engagement != nil:
		s.Due = rep.Engagement.Considered
		s.Updated = rep.Engagement.Updated
		s.Failed = rep.Engagement.Failed
		s.Skipped = rep.Engagement.Unavailable + rep.Engagement.Unsupported + rep.Engagement.Disconnected
	}
	return s
}
