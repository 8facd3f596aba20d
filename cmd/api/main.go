package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chatform/backend/internal/config"
	"github.com/chatform/backend/internal/handler"
	"github.com/chatform/backend/internal/service/gateway"
	"github.com/chatform/backend/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	gatewaySvc, err := gateway.NewService(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("failed to initialize conversation gateway: %v", err)
	}
	log.Println("conversation gateway initialized")

	store := session.NewStore(gatewaySvc)

	if cfg.Session.TTL > 0 {
		startSweeper(ctx, store, cfg.Session)
		log.Printf("session sweeper enabled: ttl=%s interval=%s", cfg.Session.TTL, cfg.Session.SweepInterval)
	}

	router := handler.NewRouter(store, gatewaySvc)

	startServer(ctx, cfg.Server, router)
}

// startSweeper periodically expires sessions past their TTL. The store's
// sweep itself stays an explicit call so it can also be driven from tests
// or tooling.
func startSweeper(ctx context.Context, store *session.Store, cfg config.SessionConfig) {
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := store.SweepExpired(cfg.TTL); removed > 0 {
					log.Printf("[sweep] expired %d session(s)", removed)
				}
			}
		}
	}()
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chatform backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
