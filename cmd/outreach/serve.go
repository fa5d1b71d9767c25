package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ashureev/outreach-agent/internal/api"
	"github.com/ashureev/outreach-agent/internal/events"
	"github.com/ashureev/outreach-agent/internal/middleware"
	"github.com/ashureev/outreach-agent/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daily scheduler and the operations API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := a.Close(); closeErr != nil {
					a.logger.Error("Failed to release resources", "error", closeErr)
				}
			}()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(parent context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.checkAgent(ctx)

	sched, err := scheduler.New(scheduler.Config{
		Hour:     a.cfg.ScheduleHour,
		Minute:   a.cfg.ScheduleMinute,
		Location: a.cfg.Location,
	}, a.pipeline.RunDaily, a.logger)
	if err != nil {
		return err
	}
	sched.Start(ctx)

	var srv *http.Server
	serverErr := make(chan error, 1)
	if a.cfg.APIEnabled {
		handler := api.NewHandler(ctx, a.repo, a.session, a.pipeline, sched, a.cfg.DryRun)
		origins := middleware.SplitOrigins(a.cfg.CORSOrigin)
		router := api.NewRouter(handler, api.RouterConfig{
			AllowedOrigins: origins,
			Metrics:        promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}),
			Events:         events.NewHandler(a.hub, origins...),
		})

		// The events websocket is long-lived, so there is no write timeout.
		srv = &http.Server{
			Addr:         ":" + a.cfg.Port,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			a.logger.Info("Server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	} else {
		a.logger.Info("Operations API disabled")
	}

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		a.logger.Error("Server failed", "error", err)
		stop()
		sched.Stop()
		a.pipeline.Wait()
		return err
	}

	a.logger.Info("Shutting down gracefully...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Server forced to shutdown", "error", err)
		}
	}

	// The scheduler waits for an in-flight daily run; API-triggered runs are
	// awaited separately.
	<-sched.Done()
	a.pipeline.Wait()

	a.logger.Info("Server stopped successfully")
	return nil
}
