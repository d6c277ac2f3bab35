// Package services – RecommendationEngine
//
// RecommendationEngine scores catalog products for a user by blending product
// popularity (rating and order volume) with the user's category history. The
// catalog and history are injected providers; manager-curated entries live in
// a separate CuratedStore.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-promo-reco/internal/domain"
	"github.com/tbourn/go-promo-reco/internal/repo"
)

// CatalogProvider returns products in catalog order, filtered by category
// when category is non-empty.
type CatalogProvider interface {
	Products(ctx context.Context, category string) ([]domain.Product, error)
}

// HistoryProvider returns the rating history of a user.
type HistoryProvider interface {
	History(ctx context.Context, userID string) ([]domain.UserHistoryEntry, error)
}

// CuratedStore persists manager-added recommendations. Update and Delete
// return repo.ErrNotFound for unknown ids.
type CuratedStore interface {
	Create(ctx context.Context, r *domain.CuratedRecommendation) error
	Update(ctx context.Context, id string, patch repo.CuratedPatch) (*domain.CuratedRecommendation, error)
	Delete(ctx context.Context, id string) error
	ListLive(ctx context.Context, now time.Time) ([]domain.CuratedRecommendation, error)
}

// Scoring weights and thresholds.
const (
	ratingWeight  = 0.6
	ordersWeight  = 0.4
	ordersScale   = 1000.0
	historyWeight = 0.2
	maxScore      = 5.0

	popularInCategoryAbove = 4.5
	preferencesAbove       = 4.0

	curatedScore = 4.0
)

// Reason strings attached to recommendations.
const (
	RecReasonPopularInCategory = "popular item in category %s"
	RecReasonPreferences       = "based on your preferences"
	RecReasonMightInterest     = "might interest you"
	RecReasonPopular           = "popular item"
	RecReasonManual            = "manually added by manager"
)

// CuratedInput describes a manager-added recommendation.
type CuratedInput struct {
	ProductID      string
	Name           string
	Category       string
	Price          float64
	DiscountPrice  *float64
	TargetAudience []string
}

// OrderedProduct is one line of a completed order.
type OrderedProduct struct {
	ProductID string
	Category  string
	Quantity  int
}

// RecommendationEngine generates personal and popular recommendations.
type RecommendationEngine struct {
	Catalog CatalogProvider
	History HistoryProvider
	Curated CuratedStore

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewRecommendationEngine wires the providers.
func NewRecommendationEngine(catalog CatalogProvider, history HistoryProvider, curated CuratedStore) *RecommendationEngine {
	return &RecommendationEngine{Catalog: catalog, History: history, Curated: curated, Now: time.Now}
}

func (e *RecommendationEngine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *RecommendationEngine) tracer() trace.Tracer {
	return otel.Tracer("services/RecommendationEngine")
}

// Score blends a product's popularity with the user's history in its
// category. Every matching history entry adds to the boost. The result is
// capped at 5.
func Score(p domain.Product, history []domain.UserHistoryEntry) float64 {
	s := p.Rating*ratingWeight + (float64(p.OrdersCount)/ordersScale)*ordersWeight
	for _, h := range history {
		if h.Category == p.Category {
			s += historyWeight * h.Rating
		}
	}
	return math.Min(s, maxScore)
}

// ReasonFor explains a personal score.
func ReasonFor(score float64, category string) string {
	switch {
	case score > popularInCategoryAbove:
		return fmt.Sprintf(RecReasonPopularInCategory, category)
	case score > preferencesAbove:
		return RecReasonPreferences
	default:
		return RecReasonMightInterest
	}
}

// GetPersonalRecommendations scores every catalog product (optionally within
// category) for userID and returns at most limit entries, best first. Equal
// scores keep catalog order.
func (e *RecommendationEngine) GetPersonalRecommendations(ctx context.Context, userID string, limit int, category string) ([]domain.Recommendation, error) {
	ctx, span := e.tracer().Start(ctx, "GetPersonalRecommendations",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("limit", limit),
			attribute.String("category", category),
		),
	)
	defer span.End()

	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	history, err := e.History.History(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	products, err := e.Catalog.Products(ctx, strings.TrimSpace(category))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	recs := make([]domain.Recommendation, 0, len(products))
	for _, p := range products {
		score := Score(p, history)
		recs = append(recs, recommendationOf(p, score, ReasonFor(score, p.Category)))
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > limit {
		recs = recs[:limit]
	}

	recsServed.WithLabelValues(string(domain.RecommendationPersonal)).Add(float64(len(recs)))
	return recs, nil
}

// GetPopularRecommendations returns catalog products (optionally within
// category) in catalog order, scored by raw rating, truncated to limit.
func (e *RecommendationEngine) GetPopularRecommendations(ctx context.Context, category string, limit int) ([]domain.Recommendation, error) {
	ctx, span := e.tracer().Start(ctx, "GetPopularRecommendations",
		trace.WithAttributes(
			attribute.Int("limit", limit),
			attribute.String("category", category),
		),
	)
	defer span.End()

	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	products, err := e.Catalog.Products(ctx, strings.TrimSpace(category))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(products) > limit {
		products = products[:limit]
	}
	recs := make([]domain.Recommendation, 0, len(products))
	for _, p := range products {
		recs = append(recs, recommendationOf(p, p.Rating, RecReasonPopular))
	}

	recsServed.WithLabelValues(string(domain.RecommendationPopular)).Add(float64(len(recs)))
	return recs, nil
}

func recommendationOf(p domain.Product, score float64, reason string) domain.Recommendation {
	return domain.Recommendation{
		ProductID:     p.ID,
		Name:          p.Name,
		Category:      p.Category,
		Price:         p.Price,
		DiscountPrice: p.DiscountPrice,
		Score:         score,
		Reason:        reason,
	}
}

// CreateRecommendation stores a manager-added personal recommendation with a
// fixed score and reason, and returns its id. Entries are not deduplicated.
func (e *RecommendationEngine) CreateRecommendation(ctx context.Context, in CuratedInput) (string, error) {
	ctx, span := e.tracer().Start(ctx, "CreateRecommendation",
		trace.WithAttributes(attribute.String("product.id", in.ProductID)),
	)
	defer span.End()

	r := &domain.CuratedRecommendation{
		ProductID:      in.ProductID,
		Name:           in.Name,
		Category:       in.Category,
		Price:          in.Price,
		DiscountPrice:  in.DiscountPrice,
		Type:           domain.RecommendationPersonal,
		Score:          curatedScore,
		Reason:         RecReasonManual,
		TargetAudience: in.TargetAudience,
		Active:         true,
	}
	if err := e.Curated.Create(ctx, r); err != nil {
		span.RecordError(err)
		return "", err
	}
	zerolog.Ctx(ctx).Info().Str("recommendation_id", r.ID).Str("product_id", r.ProductID).Msg("curated recommendation added")
	return r.ID, nil
}

// UpdateRecommendation changes priority, active flag and optionally expiry.
func (e *RecommendationEngine) UpdateRecommendation(ctx context.Context, id string, priority int, active bool, expiresAt *time.Time) (*domain.CuratedRecommendation, error) {
	ctx, span := e.tracer().Start(ctx, "UpdateRecommendation",
		trace.WithAttributes(attribute.String("recommendation.id", id)),
	)
	defer span.End()

	r, err := e.Curated.Update(ctx, id, repo.CuratedPatch{Priority: priority, Active: active, ExpiresAt: expiresAt})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRecommendationNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return r, nil
}

// DeleteRecommendation removes a curated recommendation.
func (e *RecommendationEngine) DeleteRecommendation(ctx context.Context, id string) error {
	ctx, span := e.tracer().Start(ctx, "DeleteRecommendation",
		trace.WithAttributes(attribute.String("recommendation.id", id)),
	)
	defer span.End()

	err := e.Curated.Delete(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrRecommendationNotFound
	}
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ListCurated returns active, unexpired curated entries by priority.
func (e *RecommendationEngine) ListCurated(ctx context.Context) ([]domain.CuratedRecommendation, error) {
	ctx, span := e.tracer().Start(ctx, "ListCurated")
	defer span.End()
	return e.Curated.ListLive(ctx, e.now())
}

// UpdateFromOrder is the history-learning hook. It currently records nothing
// and always succeeds.
func (e *RecommendationEngine) UpdateFromOrder(ctx context.Context, userID string, products []OrderedProduct) error {
	zerolog.Ctx(ctx).Debug().
		Str("user_id", userID).
		Int("products", len(products)).
		Msg("order received for recommendation update")
	return nil
}
