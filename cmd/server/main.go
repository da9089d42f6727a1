package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/assets"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/config"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/coordinator"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/httpapi"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/hub"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/logging"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/rollcache"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/store/gormstore"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/store/memstore"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	var st coordinator.Store
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, oerr := gormstore.Open(ctx, gormstore.Config{
			DSN:              cfg.DatabaseURL,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.OperationTimeout,
			RetryInterval:    cfg.RetryInterval,
			MaxOpenConns:     cfg.MaxOpenConns,
			MaxIdleConns:     cfg.MaxIdleConns,
		}, logger.Named("store"))
		if oerr != nil {
			return oerr
		}
		defer func() { err = multierr.Append(err, db.Close()) }()
		g.Go(func() error { return db.Monitor(ctx, cfg.RetryInterval) })
		st = db
	default:
		logger.Warn("using in-memory store; sessions are lost on restart")
		st = memstore.New()
	}

	disk, err := assets.NewDisk(cfg.UploadDir, cfg.UploadURLPrefix, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}

	h := hub.NewHub(ctx, logger.Named("hub"))
	co := coordinator.New(st, h, rollcache.New(cfg.RollHistorySize), disk, coordinator.Options{Log: logger.Named("sync")})
	g.Go(func() error { return co.Run(ctx) })

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Coordinator: co,
		Router:      h,
		WS: ws.Options{
			OutboxSize:     cfg.WSOutboxSize,
			WriteTimeout:   cfg.WSWriteTimeout,
			PongTimeout:    cfg.WSReadTimeout,
			OriginPatterns: originPatterns(cfg.CORSOrigin),
		},
		UploadDir:       cfg.UploadDir,
		UploadURLPrefix: cfg.UploadURLPrefix,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		CORSOrigin:      cfg.CORSOrigin,
		Log:             logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		h.Shutdown()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// originPatterns turns CORS_ORIGIN into websocket origin patterns, which
// match on host only.
func originPatterns(origin string) []string {
	if origin == "" || origin == "*" {
		return []string{"*"}
	}
	if i := strings.Index(origin, "://"); i >= 0 {
		origin = origin[i+3:]
	}
	return []string{origin}
}
