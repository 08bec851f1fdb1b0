package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/costwise/costwise/internal/config"
	"github.com/costwise/costwise/internal/database"
	"github.com/costwise/costwise/internal/rest"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Application wires configuration, database, router, and server lifecycle.
type Application struct {
	cfg    config.Application
	router *mux.Router
	srv    *http.Server
	deps   *Dependencies
	db     *sql.DB
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load("./config/application.yaml")
	if err != nil {
		return nil, err
	}

	// DB + migrations
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(cfg.Database); err != nil {
		return nil, err
	}

	r := mux.NewRouter()

	// Build dependencies (services, handlers...)
	deps, err := BuildDependencies(ctx, db, cfg)
	if err != nil {
		return nil, err
	}

	// Middleware chain
	SetupMiddleware(r, deps, cfg)

	// Routes
	RegisterRoutes(r, deps, cfg)

	// Frontend
	if cfg.Frontend.Enabled {
		frontend := rest.NewFrontendHandler("frontend", "index.html")
		r.PathPrefix("/").Handler(frontend)
	}

	srv := &http.Server{
		Handler:      r,
		Addr:         ":8080",
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, router: r, srv: srv, deps: deps, db: db}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a
// component fails. A clean shutdown returns nil.
func (a *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Rates.Watch {
		g.Go(func() error {
			return a.deps.CatalogStore.Watch(gctx)
		})
	}

	g.Go(func() error {
		log.Infof("Starting server on %s", a.srv.Addr)
		if err := a.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops the HTTP server and closes the import queue, the match
// resolver, and the database.
func (a *Application) Shutdown(ctx context.Context) error {
	log.Info("Shutting down")
	err := a.srv.Shutdown(ctx)
	if a.deps.ImportQueue != nil {
		if closeErr := a.deps.ImportQueue.Close(); closeErr != nil {
			log.Errorf("failed to close import queue: %v", closeErr)
		}
	}
	if closer, ok := a.deps.MatchResolver.(io.Closer); ok {
		if closeErr := closer.Close(); closeErr != nil {
			log.Errorf("failed to close match resolver: %v", closeErr)
		}
	}
	if closeErr := a.db.Close(); closeErr != nil {
		log.Errorf("failed to close database: %v", closeErr)
	}
	return err
}
