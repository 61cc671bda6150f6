package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lg/macrotrack-api/internal/analysis"
	"lg/macrotrack-api/internal/config"
	"lg/macrotrack-api/internal/imagestore"
	"lg/macrotrack-api/internal/logger"
	"lg/macrotrack-api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Close(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	analyzer, closeAnalyzer, err := newAnalyzer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAnalyzer()
	if analyzer == nil {
		log.Warn("meal analysis disabled: no API key", zap.String("provider", cfg.AIProvider))
	}

	var images imageUploader
	if cfg.S3Bucket != "" {
		s3, err := imagestore.NewS3(ctx, cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			return err
		}
		images = s3
	} else {
		log.Warn("image uploads disabled: S3_BUCKET not set")
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := NewHandler(db, analyzer, images, cfg.JWTSecret, log)
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())
	router.SetTrustedProxies(nil)
	h.registerRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("db", cfg.DBDriver), zap.String("ai", cfg.AIProvider))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DBDriver == "sqlite" {
		return store.OpenSQLite(cfg.SQLitePath, log)
	}
	return store.NewPostgres(ctx, cfg.DBURL, log)
}

// newAnalyzer returns a nil Analyzer when the selected provider has no key.
func newAnalyzer(ctx context.Context, cfg config.Config) (analysis.Analyzer, func(), error) {
	noop := func() {}
	switch cfg.AIProvider {
	case "gemini":
		g, err := analysis.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.AITimeout)
		if errors.Is(err, analysis.ErrNotConfigured) {
			return nil, noop, nil
		}
		if err != nil {
			return nil, noop, err
		}
		return g, func() { _ = g.Close() }, nil
	default:
		if cfg.OpenAIAPIKey == "" {
			return nil, noop, nil
		}
		return analysis.NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.AITimeout), noop, nil
	}
}
