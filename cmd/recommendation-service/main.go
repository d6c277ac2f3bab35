// Command recommendation-service serves personal and popular product
// recommendations and manager-curated entries over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-promo-reco/internal/app"
	"github.com/tbourn/go-promo-reco/internal/config"
	httpapi "github.com/tbourn/go-promo-reco/internal/http"
	"github.com/tbourn/go-promo-reco/internal/observability"
	"github.com/tbourn/go-promo-reco/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const purgeInterval = time.Hour

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using process environment")
	}

	cfg := config.MustLoad("recommendation", "8002")
	logger := sysutil.SetupLogging(os.Stderr, cfg.Service, cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)
	app.WarnHeaderAuth(ctx, cfg)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, sysutil.FirstNonEmpty(os.Getenv("SERVICE_VERSION"), version))
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		otelCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
		defer cancel()
		if err := shutdownOTel(otelCtx); err != nil {
			logger.Error().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := app.OpenDatabase(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("database setup failed")
	}
	engine := app.NewRecommendationEngine(cfg, db)

	r := gin.New()
	httpapi.RegisterRecommendationRoutes(r, db, engine, cfg)

	go httpapi.PurgeIdempotency(ctx, db, purgeInterval)

	logger.Info().Str("port", cfg.Port).Str("store", cfg.Store.Backend).Msg("recommendation service starting")
	if err := app.Serve(ctx, app.NewServer(cfg, r)); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		return
	}
	logger.Info().Msg("recommendation service stopped")
}
