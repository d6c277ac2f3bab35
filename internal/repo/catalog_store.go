package repo

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-promo-reco/internal/domain"
)

// MemoryCatalog is a fixed, ordered product list.
type MemoryCatalog struct {
	products []domain.Product
}

// NewMemoryCatalog copies products; slice order is catalog order.
func NewMemoryCatalog(products ...domain.Product) *MemoryCatalog {
	return &MemoryCatalog{products: slices.Clone(products)}
}

// Products returns the catalog in order, optionally filtered by category.
func (c *MemoryCatalog) Products(_ context.Context, category string) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

// StaticHistory serves per-user history from memory. Users without an entry
// get Fallback.
type StaticHistory struct {
	ByUser   map[string][]domain.UserHistoryEntry
	Fallback []domain.UserHistoryEntry
}

// History returns the user's history entries.
func (h *StaticHistory) History(_ context.Context, userID string) ([]domain.UserHistoryEntry, error) {
	if entries, ok := h.ByUser[userID]; ok {
		return slices.Clone(entries), nil
	}
	return slices.Clone(h.Fallback), nil
}

// GormCatalog reads products from the products table in Position order.
type GormCatalog struct {
	DB *gorm.DB
}

// Products returns the catalog in order, optionally filtered by category.
func (c *GormCatalog) Products(ctx context.Context, category string) ([]domain.Product, error) {
	q := c.DB.WithContext(ctx).Order("position ASC, id ASC")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var out []domain.Product
	err := q.Find(&out).Error
	return out, err
}

// GormHistory reads user history from the user_history table. Users without
// rows get Fallback.
type GormHistory struct {
	DB       *gorm.DB
	Fallback []domain.UserHistoryEntry
}

// History returns the user's history entries in insertion order.
func (h *GormHistory) History(ctx context.Context, userID string) ([]domain.UserHistoryEntry, error) {
	var out []domain.UserHistoryEntry
	if err := h.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return slices.Clone(h.Fallback), nil
	}
	return out, nil
}

// CuratedPatch carries the mutable fields of a curated recommendation.
type CuratedPatch struct {
	Priority  int
	Active    bool
	ExpiresAt *time.Time
}

func (p CuratedPatch) apply(r *domain.CuratedRecommendation) {
	r.Priority = p.Priority
	r.Active = p.Active
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		r.ExpiresAt = &t
	}
}

// MemoryCuratedStore keeps manager-added recommendations in memory.
type MemoryCuratedStore struct {
	mu    sync.RWMutex
	items map[string]domain.CuratedRecommendation
	order []string
}

// NewMemoryCuratedStore returns an empty store.
func NewMemoryCuratedStore() *MemoryCuratedStore {
	return &MemoryCuratedStore{items: make(map[string]domain.CuratedRecommendation)}
}

// Create inserts r, assigning a fresh ID.
func (s *MemoryCuratedStore) Create(_ context.Context, r *domain.CuratedRecommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = uuid.NewString()
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	s.items[r.ID] = *r
	s.order = append(s.order, r.ID)
	return nil
}

// Update applies patch to the entry with id. Returns ErrNotFound when missing.
func (s *MemoryCuratedStore) Update(_ context.Context, id string, patch CuratedPatch) (*domain.CuratedRecommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	patch.apply(&r)
	r.UpdatedAt = time.Now().UTC()
	s.items[id] = r
	return &r, nil
}

// Delete removes the entry with id. Returns ErrNotFound when missing.
func (s *MemoryCuratedStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

// ListLive returns entries live at now, highest priority first. Entries of
// equal priority keep insertion order.
func (s *MemoryCuratedStore) ListLive(_ context.Context, now time.Time) ([]domain.CuratedRecommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CuratedRecommendation, 0, len(s.order))
	for _, id := range s.order {
		if r := s.items[id]; r.Live(now) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

// GormCuratedStore persists curated recommendations through GORM.
type GormCuratedStore struct {
	DB *gorm.DB
}

// Create inserts r, assigning a fresh ID.
func (s *GormCuratedStore) Create(ctx context.Context, r *domain.CuratedRecommendation) error {
	r.ID = uuid.NewString()
	return s.DB.WithContext(ctx).Create(r).Error
}

// Update applies patch to the entry with id. Returns ErrNotFound when missing.
func (s *GormCuratedStore) Update(ctx context.Context, id string, patch CuratedPatch) (*domain.CuratedRecommendation, error) {
	var out domain.CuratedRecommendation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out, "id = ?", id).Error; err != nil {
			return err
		}
		patch.apply(&out)
		return tx.Save(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the entry with id. Returns ErrNotFound when missing.
func (s *GormCuratedStore) Delete(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Delete(&domain.CuratedRecommendation{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLive returns entries live at now, highest priority first.
func (s *GormCuratedStore) ListLive(ctx context.Context, now time.Time) ([]domain.CuratedRecommendation, error) {
	var out []domain.CuratedRecommendation
	err := s.DB.WithContext(ctx).
		Where("active = ? AND (expires_at IS NULL OR expires_at > ?)", true, now).
		Order("priority DESC, created_at ASC").
		Find(&out).Error
	return out, err
}
