package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/logging"
	"github.com/oriys/nova/internal/metrics"
	"github.com/oriys/nova/internal/observability"
	"github.com/oriys/nova/internal/watcher"
)

func daemonCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the long-lived control plane: loads persisted instances, watches config, monitors retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			logging.SetLevelFromString(cfg.Logging.Level)

			ctx := context.Background()
			if err := observability.Init(ctx, observability.Config{
				Enabled:     cfg.Tracing.Enabled,
				Exporter:    cfg.Tracing.Exporter,
				Endpoint:    cfg.Tracing.Endpoint,
				ServiceName: cfg.Tracing.ServiceName,
				SampleRate:  cfg.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(ctx)

			var metricsServer *http.Server
			if cfg.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Metrics.Namespace, nil)
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.PrometheusHandler())
				mux.Handle("/debug/metrics.json", metrics.Global().JSONHandler())
				metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
				go func() {
					if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logging.Op().Error("metrics server exited", "err", err)
					}
				}()
				logging.Op().Info("metrics server started", "addr", cfg.Metrics.Addr)
			}

			a, err := bootstrap()
			if err != nil {
				return err
			}

			if err := a.mgr.LoadPersistentInstances(ctx); err != nil {
				return fmt.Errorf("load persistent instances: %w", err)
			}
			logging.Op().Info("edge-ai control plane started", "execution_mode", a.cfg.ExecutionMode)

			configPath := a.store.Path()
			w := watcher.New(configPath, watcher.Config{
				PollInterval:    a.cfg.Watcher.PollInterval,
				StabilityWindow: a.cfg.Watcher.StabilityWindow,
			}, func(path string) {
				logging.Op().Info("instance config changed on disk, reconciling", "path", path)
				reconcileInstances(ctx, a)
			})
			w.Start()
			defer w.Stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			retryTicker := time.NewTicker(a.cfg.Supervisor.HeartbeatInterval)
			defer retryTicker.Stop()

			for {
				select {
				case <-sigCh:
					logging.Op().Info("shutdown signal received")
					if metricsServer != nil {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						_ = metricsServer.Shutdown(shutdownCtx)
						cancel()
					}
					return a.mgr.Shutdown()
				case <-retryTicker.C:
					if err := a.mgr.CheckAndHandleRetryLimits(ctx); err != nil {
						logging.Op().Warn("retry limit check failed", "err", err)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	return cmd
}

// reconcileInstances diffs every persisted instance's hot-apply fields
// against the manager's live view and forwards the delta through
// Update, so an operator editing instances.json by hand gets the same
// hot-swap-or-in-place treatment an UPDATE_INSTANCE call would (§4.F).
func reconcileInstances(ctx context.Context, a *app) {
	ids, err := a.store.LoadAll()
	if err != nil {
		logging.Op().Warn("reconcile: failed to list persisted instances", "err", err)
		return
	}
	for _, id := range ids {
		persisted, err := a.store.Load(id)
		if err != nil {
			continue
		}
		live, err := a.mgr.GetInstance(id)
		if err != nil {
			continue
		}
		patch := diffHotFields(live, persisted)
		if len(patch) == 0 {
			continue
		}
		if err := a.mgr.Update(ctx, id, patch); err != nil {
			logging.Op().Warn("reconcile: update failed", "instance", id, "err", err)
		}
	}
}

func diffHotFields(live, persisted *domain.Instance) map[string]interface{} {
	patch := map[string]interface{}{}
	if live.FrameRateLimit != persisted.FrameRateLimit {
		patch["frameRateLimit"] = persisted.FrameRateLimit
	}
	if live.DetectionSensitivity != persisted.DetectionSensitivity {
		patch["detectionSensitivity"] = string(persisted.DetectionSensitivity)
	}
	if live.MovementSensitivity != persisted.MovementSensitivity {
		patch["movementSensitivity"] = string(persisted.MovementSensitivity)
	}
	if live.AutoRestart != persisted.AutoRestart {
		patch["autoRestart"] = persisted.AutoRestart
	}
	return patch
}
