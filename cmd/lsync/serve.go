package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/layoutsync/internal/events"
	"github.com/alfredjeanlab/layoutsync/internal/server"
	"github.com/alfredjeanlab/layoutsync/internal/store/sqlstore"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the layouts remote authority",
	GroupID: "system",
	// The server owns its own store; skip opening the device store.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return setup() },
	PreRun:            longRunning,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.HTTPAddr
		}

		st, err := sqlstore.Open(ctx, cfg.ServerDatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()

		publisher, err := events.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer publisher.Close()
		if cfg.NATSURL != "" {
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		}
		if len(cfg.ServerTokens) == 0 {
			logger.Warn("auth disabled, LAYOUTS_SERVER_TOKENS not set", "principal", server.AnonymousPrincipal)
		}

		srv := server.New(st, server.WithPublisher(publisher), server.WithLogger(logger))
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           srv.NewHTTPHandler(cfg.ServerTokens),
			ReadHeaderTimeout: 10 * time.Second,
			// Event streams end when the command is interrupted.
			BaseContext: func(net.Listener) context.Context { return ctx },
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("HTTP server listening", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default LAYOUTS_HTTP_ADDR)")
}
