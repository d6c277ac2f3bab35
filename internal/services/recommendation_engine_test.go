package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-promo-reco/internal/domain"
	"github.com/tbourn/go-promo-reco/internal/repo"
)

func newRecoEngine(history ...domain.UserHistoryEntry) *RecommendationEngine {
	if history == nil {
		history = repo.DemoHistory()
	}
	e := NewRecommendationEngine(
		repo.NewMemoryCatalog(repo.DemoProducts()...),
		&repo.StaticHistory{Fallback: history},
		repo.NewMemoryCuratedStore(),
	)
	e.Now = func() time.Time { return fixedNow }
	return e
}

func ids(recs []domain.Recommendation) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ProductID)
	}
	return out
}

func TestScore(t *testing.T) {
	products := repo.DemoProducts()
	history := repo.DemoHistory()

	// 4.5*0.6 + 1.542*0.4 + 0.2*5
	assert.InDelta(t, 4.3168, Score(products[0], history), 1e-9)
	// no bakery history
	assert.InDelta(t, 3.6336, Score(products[1], history), 1e-9)
	// 4.3*0.6 + 0.756*0.4 + 0.2*4
	assert.InDelta(t, 3.6824, Score(products[3], history), 1e-9)

	// repeated categories compound, then clamp to 5
	heavy := []domain.UserHistoryEntry{
		{Category: "dairy", Rating: 5}, {Category: "dairy", Rating: 5}, {Category: "dairy", Rating: 5},
	}
	assert.Equal(t, 5.0, Score(products[2], heavy))
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, "popular item in category dairy", ReasonFor(4.51, "dairy"))
	assert.Equal(t, "based on your preferences", ReasonFor(4.5, "dairy"))
	assert.Equal(t, "based on your preferences", ReasonFor(4.01, "dairy"))
	assert.Equal(t, "might interest you", ReasonFor(4.0, "dairy"))
}

func TestPersonal_SortedAndTruncated(t *testing.T) {
	e := newRecoEngine()

	recs, err := e.GetPersonalRecommendations(context.Background(), "u1", 10, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"prod_001", "prod_003", "prod_004", "prod_002"}, ids(recs))
	assert.Equal(t, "based on your preferences", recs[0].Reason)
	assert.Equal(t, "might interest you", recs[3].Reason)
	require.NotNil(t, recs[0].DiscountPrice)
	assert.Equal(t, 79.99, *recs[0].DiscountPrice)

	top, err := e.GetPersonalRecommendations(context.Background(), "u1", 2, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"prod_001", "prod_003"}, ids(top))
}

func TestPersonal_CategoryFilter(t *testing.T) {
	e := newRecoEngine()

	recs, err := e.GetPersonalRecommendations(context.Background(), "u1", 10, "dairy")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, "dairy", r.Category)
	}

	none, err := e.GetPersonalRecommendations(context.Background(), "u1", 10, "electronics")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPersonal_TiesKeepCatalogOrder(t *testing.T) {
	same := []domain.Product{
		{ID: "a", Category: "x", Rating: 4, OrdersCount: 100},
		{ID: "b", Category: "x", Rating: 4, OrdersCount: 100},
		{ID: "c", Category: "x", Rating: 4, OrdersCount: 100},
	}
	e := NewRecommendationEngine(repo.NewMemoryCatalog(same...), &repo.StaticHistory{}, repo.NewMemoryCuratedStore())

	recs, err := e.GetPersonalRecommendations(context.Background(), "u1", 3, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(recs))
}

func TestPersonal_HighScoreReason(t *testing.T) {
	e := newRecoEngine(
		domain.UserHistoryEntry{Category: "dairy", Rating: 5},
		domain.UserHistoryEntry{Category: "dairy", Rating: 5},
	)
	recs, err := e.GetPersonalRecommendations(context.Background(), "u1", 1, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "popular item in category dairy", recs[0].Reason)
}

func TestPersonal_InvalidLimit(t *testing.T) {
	e := newRecoEngine()
	_, err := e.GetPersonalRecommendations(context.Background(), "u1", 0, "")
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = e.GetPopularRecommendations(context.Background(), "", -1)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestPopular_CatalogOrderNotSorted(t *testing.T) {
	e := newRecoEngine()
	recs, err := e.GetPopularRecommendations(context.Background(), "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"prod_001", "prod_002"}, ids(recs))
	for _, r := range recs {
		assert.Equal(t, "popular item", r.Reason)
	}
	assert.Equal(t, 4.5, recs[0].Score)
	assert.Equal(t, 4.7, recs[1].Score)

	dairy, err := e.GetPopularRecommendations(context.Background(), "dairy", 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"prod_001", "prod_003"}, ids(dairy))
}

func TestCurated_Lifecycle(t *testing.T) {
	e := newRecoEngine()
	ctx := context.Background()

	id, err := e.CreateRecommendation(ctx, CuratedInput{ProductID: "prod_002", Name: "White bread", Category: "bakery", Price: 45.5})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// not deduplicated
	id2, err := e.CreateRecommendation(ctx, CuratedInput{ProductID: "prod_002", Name: "White bread", Category: "bakery", Price: 45.5})
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)

	list, err := e.ListCurated(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.RecommendationPersonal, list[0].Type)
	assert.Equal(t, 4.0, list[0].Score)
	assert.Equal(t, "manually added by manager", list[0].Reason)

	updated, err := e.UpdateRecommendation(ctx, id2, 10, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, updated.Priority)
	list, _ = e.ListCurated(ctx)
	assert.Equal(t, id2, list[0].ID)

	_, err = e.UpdateRecommendation(ctx, "missing", 1, true, nil)
	assert.ErrorIs(t, err, ErrRecommendationNotFound)

	require.NoError(t, e.DeleteRecommendation(ctx, id))
	assert.ErrorIs(t, e.DeleteRecommendation(ctx, id), ErrRecommendationNotFound)
}

func TestUpdateFromOrder_NoOp(t *testing.T) {
	e := newRecoEngine()
	ctx := context.Background()

	before, _ := e.GetPersonalRecommendations(ctx, "u1", 10, "")
	err := e.UpdateFromOrder(ctx, "u1", []OrderedProduct{{ProductID: "prod_002", Category: "bakery", Quantity: 3}})
	require.NoError(t, err)
	after, _ := e.GetPersonalRecommendations(ctx, "u1", 10, "")
	assert.Equal(t, before, after)
}
