package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillpost/internal/config"
	"github.com/quillpost/internal/db"
	"github.com/quillpost/internal/handler"
	"github.com/quillpost/internal/logging"
	"github.com/quillpost/internal/router"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		logger.Error("failed to initialize database", zap.Error(err))
		return err
	}

	api := handler.NewAPI(db.DB, handler.Options{
		UploadDir:      cfg.UploadDir,
		FileURLPath:    cfg.FileURLPath,
		SessionTTL:     cfg.SessionTTL,
		SubmitTimeout:  cfg.FormSubmitTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})

	engine, err := router.SetupRouter(api, router.Options{
		SessionSecret: cfg.SessionSecret,
		SecureCookies: cfg.SecureCookies,
		SessionMaxAge: int(cfg.SessionTTL / time.Second),
		FileURLPath:   cfg.FileURLPath,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to build router", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if purged, err := api.Accounts().PurgeExpiredSessions(ctx); err != nil {
		logger.Warn("failed to purge expired sessions", zap.Error(err))
	} else if purged > 0 {
		logger.Info("purged expired sessions", zap.Int64("count", purged))
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("server stopped", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
