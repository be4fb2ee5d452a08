// Package app assembles the service components in dependency order and owns
// their lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"cvlive/internal/api"
	"cvlive/internal/broadcast"
	"cvlive/internal/config"
	"cvlive/internal/coordinator"
	"cvlive/internal/metrics"
	"cvlive/internal/registry"
	"cvlive/internal/session"
	"cvlive/internal/store"
	"cvlive/internal/websocket"
)

// Application holds the wired components. Initialization order:
// store → session manager → registry → broadcaster → coordinator →
// websocket handler → api server → http server.
type Application struct {
	config     *config.Config
	store      store.Store
	sessions   *session.Manager
	registry   *registry.Registry
	httpServer *http.Server
}

// NewApplication builds the component graph and loads persisted state.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	sessions := session.NewManager(st)
	if err := sessions.Load(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}

	reg := registry.NewRegistry()
	broadcaster := broadcast.NewBroadcaster(reg)
	coord := coordinator.NewCoordinator(sessions, reg, broadcaster, cfg.PublicBaseURL)

	wsHandler := websocket.NewHandler(reg, coord, websocket.Options{
		PingInterval: cfg.WSPingInterval,
		ReadTimeout:  cfg.WSReadTimeout,
		WriteTimeout: cfg.WSWriteTimeout,
		SendBuffer:   cfg.WSSendBuffer,
	})
	apiServer := api.NewServer(sessions, coord, reg, st)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      st,
		sessions:   sessions,
		registry:   reg,
		httpServer: httpServer,
	}, nil
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StorageDriver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.SQLitePath)
	default:
		return store.NewFileStore(cfg.DataDir)
	}
}

// Start runs the HTTP server until ctx is cancelled or the listener fails.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("app: listening on %s (storage=%s)", app.config.Addr, app.config.StorageDriver)

	errCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Stop shuts components down in reverse order: HTTP first so no new events
// arrive, then storage.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("app: shutting down")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("app: http shutdown error: %v", err)
	}
	if err := app.store.Close(); err != nil {
		log.Printf("app: storage shutdown error: %v", err)
	}

	log.Printf("app: shutdown complete")
	return nil
}
