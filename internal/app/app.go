// Package app wires configuration, storage, events and the HTTP server into a
// runnable service. Both service mains are thin wrappers around it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-promo-reco/internal/config"
	"github.com/tbourn/go-promo-reco/internal/domain"
	"github.com/tbourn/go-promo-reco/internal/events"
	"github.com/tbourn/go-promo-reco/internal/repo"
	"github.com/tbourn/go-promo-reco/internal/services"
)

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
const ShutdownTimeout = 5 * time.Second

// OpenDatabase opens and migrates the configured database. The idempotency
// ledger always lives here, so it is opened even with the memory backend.
// Demo data is seeded only for the SQL backend.
func OpenDatabase(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if cfg.Store.SQL() && cfg.Store.SeedDemo {
		if err := repo.SeedDemo(ctx, db, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}
	return db, nil
}

// NewPublisher returns an SNS publisher when a topic is configured and a
// logging publisher otherwise.
func NewPublisher(ctx context.Context, cfg config.EventsConfig) (services.EventPublisher, error) {
	if cfg.TopicARN == "" {
		zerolog.Ctx(ctx).Info().Msg("no event topic configured, logging promocode events")
		return events.LogPublisher{}, nil
	}
	p, err := events.NewSNSPublisherFromEnv(ctx, cfg.TopicARN, events.AWSOptions{
		Region:   cfg.AWSRegion,
		Endpoint: cfg.AWSEndpoint,
	})
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("topic_arn", cfg.TopicARN).Msg("publishing promocode events to SNS")
	return p, nil
}

// NewPromoEngine builds the promocode engine on the configured backend.
func NewPromoEngine(ctx context.Context, cfg config.Config, db *gorm.DB) (*services.PromoEngine, error) {
	pub, err := NewPublisher(ctx, cfg.Events)
	if err != nil {
		return nil, err
	}
	var store services.PromoStore
	if cfg.Store.SQL() {
		store = repo.NewGormPromoStore(db)
	} else {
		var seed []domain.Promocode
		if cfg.Store.SeedDemo {
			seed = repo.DemoPromocodes(time.Now().UTC())
		}
		store = repo.NewMemoryPromoStore(seed...)
	}
	return services.NewPromoEngine(store, pub), nil
}

// NewRecommendationEngine builds the recommendation engine on the configured
// backend.
func NewRecommendationEngine(cfg config.Config, db *gorm.DB) *services.RecommendationEngine {
	if cfg.Store.SQL() {
		return services.NewRecommendationEngine(
			&repo.GormCatalog{DB: db},
			&repo.GormHistory{DB: db, Fallback: repo.DemoHistory()},
			&repo.GormCuratedStore{DB: db},
		)
	}
	var (
		products []domain.Product
		history  []domain.UserHistoryEntry
	)
	if cfg.Store.SeedDemo {
		products = repo.DemoProducts()
		history = repo.DemoHistory()
	}
	return services.NewRecommendationEngine(
		repo.NewMemoryCatalog(products...),
		&repo.StaticHistory{Fallback: history},
		repo.NewMemoryCuratedStore(),
	)
}

// WarnHeaderAuth logs a warning when no JWT secret is configured. Identity and
// role are then taken from the X-User-ID and X-User-Role headers, so any
// caller can act as a manager. It reports whether the warning was logged.
func WarnHeaderAuth(ctx context.Context, cfg config.Config) bool {
	if cfg.JWTSecret != "" {
		return false
	}
	zerolog.Ctx(ctx).Warn().
		Str("service", cfg.Service).
		Msg("JWT_SECRET is empty: trusting X-User-ID and X-User-Role headers, manager routes are unprotected")
	return true
}

// NewServer returns an http.Server for h using the configured timeouts.
func NewServer(cfg config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

// Serve runs srv until ctx is done, then shuts it down gracefully. A listen
// failure is returned immediately.
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		zerolog.Ctx(ctx).Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zerolog.Ctx(ctx).Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
