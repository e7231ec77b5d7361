package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/provia/courtage/internal/config"
	"github.com/provia/courtage/internal/database"
	"github.com/provia/courtage/internal/logger"
	"github.com/provia/courtage/internal/server"
	"github.com/provia/courtage/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("database ready", zap.String("path", cfg.Database.Path))

	matcher := &service.Matcher{DB: db, Log: log}
	ingester := &service.Ingester{DB: db, Log: log}
	settler := &service.Settler{DB: db, Log: log}
	clearance := &service.Clearance{DB: db}
	dashboard := &service.Dashboard{DB: db}
	advisors := &service.Advisors{DB: db, Log: log, Matcher: matcher}
	mappings := &service.Mappings{DB: db}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	handlers := []interface{ Register(*gin.Engine) }{
		&server.HealthHandler{DB: db},
		&server.AdvisorHandler{Service: advisors, DB: db},
		&server.MappingHandler{Service: mappings},
		&server.ImportHandler{Ingester: ingester},
		&server.MatchHandler{Matcher: matcher},
		&server.SettlementHandler{Settler: settler, DB: db},
		&server.OverviewHandler{Clearance: clearance, Dashboard: dashboard},
	}
	for _, h := range handlers {
		h.Register(engine)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
