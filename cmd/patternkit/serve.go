package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/patternkit/patternkit/pkg/hub"
	"github.com/patternkit/patternkit/pkg/store"
)

const shutdownTimeout = 5 * time.Second

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			l, closer, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer closer.Close()

			if cfg.Store.Path != store.MemoryPath {
				if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
					return fmt.Errorf("create store directory: %w", err)
				}
			}
			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			var auth *hub.Authenticator
			if cfg.Auth.Secret != "" {
				auth = hub.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			h := hub.New(st, hub.Options{
				SaveDebounce:  cfg.History.SaveDebounce,
				HandleTimeout: cfg.Server.RequestTimeout,
				WSPath:        cfg.Server.WSPath,
				MetricsPath:   cfg.Server.MetricsPath,
				Auth:          auth,
				Registerer:    registry,
				Logger:        l,
			})
			defer h.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if len(cfg.Library.Watch) > 0 {
				watcher, err := h.WatchLibraries(ctx, cfg.Library.Watch, cfg.Library.Debounce)
				if err != nil {
					return fmt.Errorf("watch libraries: %w", err)
				}
				defer watcher.Stop()
			}

			server := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           h,
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()
			l.Info("hub listening",
				"addr", cfg.Server.Addr,
				"hub_id", h.ID(),
				"store", cfg.Store.Path,
				"auth", auth != nil,
				"version", Version)

			select {
			case <-ctx.Done():
				l.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	return cmd
}
