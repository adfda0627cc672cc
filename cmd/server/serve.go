package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/billing-ledger/api"
)

func newServeCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "HTTP server port (overrides app.port)")
	return cmd
}

func (a *app) serve(parent context.Context, port string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if port == "" {
		port = a.cfg.App.Port
	}

	svc, closeAll, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	deliverer := a.deliverer()
	handler := api.NewHandler(svc, deliverer, a.log.Named("api"))

	if a.cfg.Scheduler.Enabled {
		scanner := api.NewOverdueScanner(svc, a.log)
		scanner.CheckInterval = a.cfg.Scheduler.CheckInterval
		handler.Scanner = scanner
		scanner.Start()
		defer scanner.Stop()
	}

	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: a.cfg.HTTP.CORSAllowOrigins,
		Logger:         a.log.Named("http"),
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting",
			zap.String("addr", fmt.Sprintf("http://localhost:%s", port)),
			zap.String("delivery", deliverer.Channel()),
			zap.String("ceiling_mode", string(svc.CeilingMode())),
			zap.Bool("scheduler", a.cfg.Scheduler.Enabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}
