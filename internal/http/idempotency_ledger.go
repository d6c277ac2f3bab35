package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-promo-reco/internal/http/middleware"
	"github.com/tbourn/go-promo-reco/internal/repo"
)

// idempotencyLedger adapts the repository idempotency table to
// middleware.IdempotencyStore.
type idempotencyLedger struct {
	db  *gorm.DB
	ttl time.Duration
}

func (l *idempotencyLedger) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (*middleware.StoredResponse, error) {
	rec, err := repo.GetIdempotency(ctx, l.db, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &middleware.StoredResponse{Status: rec.Status, Body: rec.Body}, nil
}

// Save records resp. A concurrent request that stored the same key first
// wins; that is not an error.
func (l *idempotencyLedger) Save(ctx context.Context, userID, scope, key string, resp middleware.StoredResponse) error {
	_, err := repo.CreateIdempotency(ctx, l.db, userID, scope, key, resp.Status, resp.Body, l.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// PurgeIdempotency deletes expired ledger rows every interval until ctx is
// done.
func PurgeIdempotency(ctx context.Context, db *gorm.DB, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				zerolog.Ctx(ctx).Debug().Int64("rows", n).Msg("expired idempotency keys purged")
			}
		}
	}
}
