package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-promo-reco/internal/config"
	"github.com/tbourn/go-promo-reco/internal/domain"
	"github.com/tbourn/go-promo-reco/internal/events"
	"github.com/tbourn/go-promo-reco/internal/repo"
)

func testConfig(t *testing.T, backend string, seed bool) config.Config {
	t.Helper()
	return config.Config{
		Service: "promocode",
		Port:    "0",
		Store: config.StoreConfig{
			Backend:  backend,
			Driver:   repo.DriverSQLite,
			DSN:      fmt.Sprintf("file:app_%s?mode=memory&cache=shared", uuid.NewString()),
			SeedDemo: seed,
		},
	}
}

func TestOpenDatabase_SeedsOnlyForSQLBackend(t *testing.T) {
	ctx := context.Background()

	db, err := OpenDatabase(ctx, testConfig(t, "sql", true))
	require.NoError(t, err)
	var n int64
	require.NoError(t, db.Model(&domain.Product{}).Count(&n).Error)
	assert.Equal(t, int64(len(repo.DemoProducts())), n)

	db, err = OpenDatabase(ctx, testConfig(t, "memory", true))
	require.NoError(t, err)
	require.NoError(t, db.Model(&domain.Product{}).Count(&n).Error)
	assert.Zero(t, n)

	// the ledger table exists either way
	assert.True(t, db.Migrator().HasTable(&domain.Idempotency{}))
}

func TestOpenDatabase_UnknownDriver(t *testing.T) {
	cfg := testConfig(t, "memory", false)
	cfg.Store.Driver = "oracle"
	_, err := OpenDatabase(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewPublisher_WithoutTopicLogs(t *testing.T) {
	p, err := NewPublisher(context.Background(), config.EventsConfig{})
	require.NoError(t, err)
	assert.IsType(t, events.LogPublisher{}, p)
}

func TestNewPromoEngine_Backends(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{"memory", "sql"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend, true)
			db, err := OpenDatabase(ctx, cfg)
			require.NoError(t, err)

			eng, err := NewPromoEngine(ctx, cfg, db)
			require.NoError(t, err)

			p, err := eng.GetByCode(ctx, "SUMMER25")
			require.NoError(t, err)
			assert.Equal(t, "SUMMER25", p.Code)
		})
	}
}

func TestNewPromoEngine_MemoryWithoutSeedIsEmpty(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "memory", false)
	db, err := OpenDatabase(ctx, cfg)
	require.NoError(t, err)

	eng, err := NewPromoEngine(ctx, cfg, db)
	require.NoError(t, err)
	active, err := eng.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestNewRecommendationEngine_Backends(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{"memory", "sql"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend, true)
			db, err := OpenDatabase(ctx, cfg)
			require.NoError(t, err)

			eng := NewRecommendationEngine(cfg, db)
			recs, err := eng.GetPersonalRecommendations(ctx, repo.DemoUserID, 10, "")
			require.NoError(t, err)
			assert.Len(t, recs, len(repo.DemoProducts()))

			popular, err := eng.GetPopularRecommendations(ctx, "", 2)
			require.NoError(t, err)
			assert.Len(t, popular, 2)
		})
	}
}

func TestWarnHeaderAuth(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	cfg := testConfig(t, "memory", false)
	assert.True(t, WarnHeaderAuth(ctx, cfg))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "JWT_SECRET is empty")

	buf.Reset()
	cfg.JWTSecret = "s3cret"
	assert.False(t, WarnHeaderAuth(ctx, cfg))
	assert.Empty(t, buf.String())
}

func TestNewServer_UsesConfiguredTimeouts(t *testing.T) {
	cfg := config.Config{
		Port:              "8001",
		ReadTimeout:       time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      3 * time.Second,
		IdleTimeout:       4 * time.Second,
		MaxHeaderBytes:    512,
	}
	srv := NewServer(cfg, http.NotFoundHandler())
	assert.Equal(t, ":8001", srv.Addr)
	assert.Equal(t, time.Second, srv.ReadTimeout)
	assert.Equal(t, 2*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 3*time.Second, srv.WriteTimeout)
	assert.Equal(t, 4*time.Second, srv.IdleTimeout)
	assert.Equal(t, 512, srv.MaxHeaderBytes)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * ShutdownTimeout):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_ListenError(t *testing.T) {
	srv := &http.Server{Addr: ":-1", Handler: http.NotFoundHandler()}
	err := Serve(context.Background(), srv)
	assert.Error(t, err)
}
