package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expensetrail/internal/auth"
	"expensetrail/internal/config"
	"expensetrail/internal/handlers"
	"expensetrail/internal/session"
	"expensetrail/internal/storage"
)

type application struct {
	cfg    config.Config
	db     *storage.DB
	router http.Handler
}

func newApplication(cfg config.Config) (*application, error) {
	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sessions := session.NewManager(session.NewSQLStore(db), cfg.SessionTTL)
	authService := auth.NewService(db, sessions)
	h := handlers.NewHandlers(authService, sessions, db, cfg.TemplateDir, cfg.Production())

	return &application{
		cfg:    cfg,
		db:     db,
		router: handlers.NewRouter(h),
	}, nil
}

// cleanupLoop periodically removes expired sessions until ctx is done.
func (app *application) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.db.CleanExpiredSessions(); err != nil {
				log.Printf("Failed to clean expired sessions: %v", err)
			}
		}
	}
}

func run() error {
	cfg := config.Load()

	app, err := newApplication(cfg)
	if err != nil {
		return err
	}
	defer app.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go app.cleanupLoop(ctx, time.Hour)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      app.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Print("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
