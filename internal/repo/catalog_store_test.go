package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-promo-reco/internal/domain"
)

func TestCatalogs_OrderAndCategoryFilter(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Product{})
	products := DemoProducts()
	if err := db.Create(&products).Error; err != nil {
		t.Fatalf("seed products: %v", err)
	}

	catalogs := map[string]interface {
		Products(context.Context, string) ([]domain.Product, error)
	}{
		"memory": NewMemoryCatalog(DemoProducts()...),
		"gorm":   &GormCatalog{DB: db},
	}
	for name, c := range catalogs {
		all, err := c.Products(ctx, "")
		if err != nil || len(all) != 4 {
			t.Fatalf("%s: len=%d err=%v", name, len(all), err)
		}
		for i, want := range []string{"prod_001", "prod_002", "prod_003", "prod_004"} {
			if all[i].ID != want {
				t.Fatalf("%s: position %d = %s; want %s", name, i, all[i].ID, want)
			}
		}
		dairy, _ := c.Products(ctx, "dairy")
		if len(dairy) != 2 || dairy[0].ID != "prod_001" || dairy[1].ID != "prod_003" {
			t.Fatalf("%s: unexpected dairy filter result %+v", name, dairy)
		}
		none, _ := c.Products(ctx, "electronics")
		if len(none) != 0 {
			t.Fatalf("%s: expected empty result for unknown category", name)
		}
	}
}

func TestHistories_Fallback(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.UserHistoryEntry{})
	own := []domain.UserHistoryEntry{{UserID: "u1", ProductID: "prod_002", Category: "bakery", Rating: 3}}
	if err := db.Create(&own).Error; err != nil {
		t.Fatalf("seed history: %v", err)
	}

	histories := map[string]interface {
		History(context.Context, string) ([]domain.UserHistoryEntry, error)
	}{
		"memory": &StaticHistory{ByUser: map[string][]domain.UserHistoryEntry{"u1": own}, Fallback: DemoHistory()},
		"gorm":   &GormHistory{DB: db, Fallback: DemoHistory()},
	}
	for name, h := range histories {
		got, err := h.History(ctx, "u1")
		if err != nil || len(got) != 1 || got[0].Category != "bakery" {
			t.Fatalf("%s: own history = %+v err=%v", name, got, err)
		}
		fb, _ := h.History(ctx, "stranger")
		if len(fb) != 2 || fb[0].ProductID != "prod_001" {
			t.Fatalf("%s: fallback history = %+v", name, fb)
		}
	}
}

func TestCuratedStores_Lifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	stores := map[string]interface {
		Create(context.Context, *domain.CuratedRecommendation) error
		Update(context.Context, string, CuratedPatch) (*domain.CuratedRecommendation, error)
		Delete(context.Context, string) error
		ListLive(context.Context, time.Time) ([]domain.CuratedRecommendation, error)
	}{
		"memory": NewMemoryCuratedStore(),
		"gorm":   &GormCuratedStore{DB: newTestDB(t, &domain.CuratedRecommendation{})},
	}
	for name, s := range stores {
		a := &domain.CuratedRecommendation{ProductID: "prod_001", Name: "Fresh milk", Category: "dairy", Type: domain.RecommendationPersonal, Score: 4, Active: true}
		b := &domain.CuratedRecommendation{ProductID: "prod_002", Name: "White bread", Category: "bakery", Type: domain.RecommendationPersonal, Score: 4, Active: true}
		if err := s.Create(ctx, a); err != nil || a.ID == "" {
			t.Fatalf("%s: create a: id=%q err=%v", name, a.ID, err)
		}
		if err := s.Create(ctx, b); err != nil {
			t.Fatalf("%s: create b: %v", name, err)
		}

		if _, err := s.Update(ctx, b.ID, CuratedPatch{Priority: 5, Active: true}); err != nil {
			t.Fatalf("%s: update: %v", name, err)
		}
		live, _ := s.ListLive(ctx, now)
		if len(live) != 2 || live[0].ID != b.ID {
			t.Fatalf("%s: expected b first after priority bump, got %+v", name, live)
		}

		past := now.Add(-time.Hour)
		if _, err := s.Update(ctx, a.ID, CuratedPatch{Active: true, ExpiresAt: &past}); err != nil {
			t.Fatalf("%s: update expiry: %v", name, err)
		}
		live, _ = s.ListLive(ctx, now)
		if len(live) != 1 {
			t.Fatalf("%s: expired entry must be hidden, got %d", name, len(live))
		}

		if _, err := s.Update(ctx, "missing", CuratedPatch{}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound on update, got %v", name, err)
		}
		if err := s.Delete(ctx, b.ID); err != nil {
			t.Fatalf("%s: delete: %v", name, err)
		}
		if err := s.Delete(ctx, b.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound on second delete, got %v", name, err)
		}
	}
}

func TestSeedDemo_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		if err := SeedDemo(ctx, db, now); err != nil {
			t.Fatalf("SeedDemo run %d: %v", i, err)
		}
	}
	var promos, products, history int64
	db.Model(&domain.Promocode{}).Count(&promos)
	db.Model(&domain.Product{}).Count(&products)
	db.Model(&domain.UserHistoryEntry{}).Count(&history)
	if promos != 3 || products != 4 || history != 2 {
		t.Fatalf("counts promos=%d products=%d history=%d", promos, products, history)
	}
}
