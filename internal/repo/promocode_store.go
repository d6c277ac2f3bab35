package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-promo-reco/internal/domain"
)

// MemoryPromoStore keeps promocodes in process memory. Records are copied on
// the way in and out so callers never share state with the store.
type MemoryPromoStore struct {
	mu    sync.RWMutex
	byKey map[string]*domain.Promocode
	order []string
}

// NewMemoryPromoStore returns a store pre-loaded with seed.
func NewMemoryPromoStore(seed ...domain.Promocode) *MemoryPromoStore {
	s := &MemoryPromoStore{byKey: make(map[string]*domain.Promocode, len(seed))}
	for i := range seed {
		_ = s.Create(context.Background(), &seed[i])
	}
	return s
}

// GetByCode returns a copy of the record with the exact code or ErrNotFound.
func (s *MemoryPromoStore) GetByCode(_ context.Context, code string) (*domain.Promocode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byKey[code]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// ListByOwner returns the user's codes in insertion order.
func (s *MemoryPromoStore) ListByOwner(_ context.Context, userID string) ([]domain.Promocode, error) {
	return s.filter(func(p *domain.Promocode) bool { return p.UserID == userID }), nil
}

// ListActive returns codes whose status is active and that expire after now.
func (s *MemoryPromoStore) ListActive(_ context.Context, now time.Time) ([]domain.Promocode, error) {
	return s.filter(func(p *domain.Promocode) bool {
		return p.Status == domain.PromoActive && p.ExpiresAt.After(now)
	}), nil
}

// Create inserts p, assigning an ID when empty. Returns ErrDuplicate when the
// code already exists.
func (s *MemoryPromoStore) Create(_ context.Context, p *domain.Promocode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[p.Code]; ok {
		return ErrDuplicate
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.byKey[p.Code] = p.Clone()
	s.order = append(s.order, p.Code)
	return nil
}

// Save replaces an existing record. Returns ErrNotFound for unknown codes.
func (s *MemoryPromoStore) Save(_ context.Context, p *domain.Promocode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[p.Code]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	s.byKey[p.Code] = p.Clone()
	return nil
}

func (s *MemoryPromoStore) filter(keep func(*domain.Promocode) bool) []domain.Promocode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Promocode, 0, len(s.order))
	for _, code := range s.order {
		if p := s.byKey[code]; keep(p) {
			out = append(out, *p.Clone())
		}
	}
	return out
}

// GormPromoStore persists promocodes through GORM.
type GormPromoStore struct {
	DB *gorm.DB
}

// NewGormPromoStore wraps db.
func NewGormPromoStore(db *gorm.DB) *GormPromoStore { return &GormPromoStore{DB: db} }

// GetByCode returns the record with the exact code or ErrNotFound.
func (s *GormPromoStore) GetByCode(ctx context.Context, code string) (*domain.Promocode, error) {
	var p domain.Promocode
	if err := s.DB.WithContext(ctx).Where("code = ?", code).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByOwner returns the user's codes ordered by creation time.
func (s *GormPromoStore) ListByOwner(ctx context.Context, userID string) ([]domain.Promocode, error) {
	var out []domain.Promocode
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, code ASC").
		Find(&out).Error
	return out, err
}

// ListActive returns active codes that expire after now.
func (s *GormPromoStore) ListActive(ctx context.Context, now time.Time) ([]domain.Promocode, error) {
	var out []domain.Promocode
	err := s.DB.WithContext(ctx).
		Where("status = ? AND expires_at > ?", domain.PromoActive, now).
		Order("created_at ASC, code ASC").
		Find(&out).Error
	return out, err
}

// Create inserts p and returns ErrDuplicate on a unique violation.
func (s *GormPromoStore) Create(ctx context.Context, p *domain.Promocode) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := s.DB.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Save updates the mutable lifecycle fields of an existing record.
func (s *GormPromoStore) Save(ctx context.Context, p *domain.Promocode) error {
	res := s.DB.WithContext(ctx).
		Model(&domain.Promocode{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"usage_count": p.UsageCount,
			"status":      p.Status,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
