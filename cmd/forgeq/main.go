package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/genforge/forgeq"
	"github.com/genforge/forgeq/httpapi"
	"github.com/genforge/forgeq/metrics"
	"github.com/genforge/forgeq/store"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	root := buildCLI()
	root.Version = fmt.Sprintf("%s (commit: %s)", version, commit)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func buildCLI() *cobra.Command {
	var (
		configPath string
		addr       string
		debug      bool
	)
	root := &cobra.Command{
		Use:   "forgeq",
		Short: "Multi-tenant project-generation job queue",
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue service: API, workers and reaper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := forgeq.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			return serveQueue(cmd.Context(), cfg, debug)
		},
	}
	serve.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	serve.Flags().StringVar(&addr, "addr", "", "listen address, overrides configuration")
	serve.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.AddCommand(serve)
	return root
}

func serveQueue(parent context.Context, cfg forgeq.Config, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewRedis(ctx, cfg.Redis.Options())
	if err != nil {
		return err
	}
	defer st.Close()

	collector := metrics.New()
	estimator := forgeq.NewEstimator(st, cfg, collector, log)
	manager := forgeq.NewManager(st, cfg, estimator, collector, log)
	admission := forgeq.NewAdmission(st, cfg, collector, log)

	reaper := forgeq.NewReaper(st, cfg, collector, log)
	if err := reaper.Start(ctx); err != nil {
		return err
	}

	var fleet *forgeq.Fleet
	if cfg.Engine.URL != "" {
		fleet = forgeq.NewFleet(manager, forgeq.NewHTTPGenerator(cfg.Engine.URL), cfg, log)
		if err := fleet.Start(ctx); err != nil {
			return err
		}
	} else {
		log.Warn("no engine url configured, running without workers")
	}

	api := httpapi.New(admission, manager, estimator, collector.Handler(), log)
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api,
		ReadTimeout:  seconds(cfg.HTTP.ReadTimeoutSeconds),
		WriteTimeout: seconds(cfg.HTTP.WriteTimeoutSeconds),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTP.Addr, "workers", cfg.Workers.Count)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownTimeout := seconds(cfg.HTTP.ShutdownTimeoutSeconds)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if fleet != nil {
		if err := fleet.Stop(shutdownTimeout); err != nil {
			log.Error("fleet shutdown failed", "err", err)
		}
	}
	if err := reaper.Stop(shutdownTimeout); err != nil {
		log.Error("reaper shutdown failed", "err", err)
	}
	return nil
}
