package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-promo-reco/internal/http/middleware"
	"github.com/tbourn/go-promo-reco/internal/repo"
	"github.com/tbourn/go-promo-reco/internal/services"
)

var managerHdr = map[string]string{
	middleware.HeaderUserID:   otherUserID,
	middleware.HeaderUserRole: "Manager",
}

func newRecoRouter(t *testing.T) (*gin.Engine, *RecommendationHandlers) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := services.NewRecommendationEngine(
		repo.NewMemoryCatalog(repo.DemoProducts()...),
		&repo.StaticHistory{Fallback: repo.DemoHistory()},
		repo.NewMemoryCuratedStore(),
	)
	h := NewRecommendationHandlers(engine)
	h.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Authenticate(middleware.AuthOptions{}))
	g := r.Group("/recommendations")
	g.GET("", h.GetPopular)
	g.GET("/curated", h.ListCurated)
	g.GET("/:user_id", h.GetPersonal)
	g.POST("/:user_id/update-from-order", h.UpdateFromOrder)

	m := g.Group("", middleware.RequireRole(middleware.RoleManager))
	m.POST("", h.CreateRecommendation)
	m.PUT("/:id", h.UpdateRecommendation)
	m.DELETE("/:id", h.DeleteRecommendation)
	return r, h
}

func productIDs(l []map[string]any) []string {
	out := make([]string, 0, len(l))
	for _, e := range l {
		out = append(out, e["product_id"].(string))
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGetPersonal_RankedLimitedFiltered(t *testing.T) {
	r, _ := newRecoRouter(t)

	cases := []struct {
		query string
		want  []string
	}{
		{"", []string{"prod_001", "prod_003", "prod_004", "prod_002"}},
		{"?limit=2", []string{"prod_001", "prod_003"}},
		{"?category=dairy", []string{"prod_001", "prod_003"}},
		{"?category=frozen", []string{}},
	}
	for _, tc := range cases {
		w := doJSON(r, http.MethodGet, "/recommendations/"+repo.DemoUserID+tc.query, nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%q: status=%d body=%s", tc.query, w.Code, w.Body.String())
		}
		if got := productIDs(decodeList(t, w)); !equalIDs(got, tc.want) {
			t.Fatalf("%q: got %v want %v", tc.query, got, tc.want)
		}
	}

	w := doJSON(r, http.MethodGet, "/recommendations/"+repo.DemoUserID+"?limit=1", nil, nil)
	top := decodeList(t, w)[0]
	if top["reason"] != "based on your preferences" || top["discount_price"] != 79.99 {
		t.Fatalf("unexpected top entry %v", top)
	}
}

func TestGetPersonal_BadInput(t *testing.T) {
	r, _ := newRecoRouter(t)

	cases := []struct {
		path string
		code string
	}{
		{"/recommendations/not-a-uuid", ErrCodeInvalidUserID},
		{"/recommendations/" + repo.DemoUserID + "?limit=0", ErrCodeInvalidLimit},
		{"/recommendations/" + repo.DemoUserID + "?limit=51", ErrCodeInvalidLimit},
		{"/recommendations/" + repo.DemoUserID + "?limit=ten", ErrCodeInvalidLimit},
	}
	for _, tc := range cases {
		w := doJSON(r, http.MethodGet, tc.path, nil, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", tc.path, w.Code)
		}
		if m := decode(t, w); m["code"] != tc.code {
			t.Fatalf("%s: unexpected body %v", tc.path, m)
		}
	}
}

func TestGetPopular_CatalogOrder(t *testing.T) {
	r, _ := newRecoRouter(t)

	w := doJSON(r, http.MethodGet, "/recommendations?limit=2", nil, nil)
	l := decodeList(t, w)
	if got := productIDs(l); !equalIDs(got, []string{"prod_001", "prod_002"}) {
		t.Fatalf("got %v", got)
	}
	for _, e := range l {
		if e["reason"] != "popular item" {
			t.Fatalf("unexpected reason %v", e["reason"])
		}
	}
	if l[0]["score"] != 4.5 || l[1]["score"] != 4.7 {
		t.Fatalf("popular score is the raw rating: %v", l)
	}

	w = doJSON(r, http.MethodGet, "/recommendations", nil, nil)
	if got := productIDs(decodeList(t, w)); len(got) != 4 {
		t.Fatalf("default limit should cover the catalog, got %v", got)
	}

	w = doJSON(r, http.MethodGet, "/recommendations?limit=101", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("limit=101 status=%d", w.Code)
	}
	w = doJSON(r, http.MethodGet, "/recommendations?limit=100", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("limit=100 status=%d", w.Code)
	}
}

func TestUpdateFromOrder(t *testing.T) {
	r, _ := newRecoRouter(t)
	path := "/recommendations/" + repo.DemoUserID + "/update-from-order"
	body := map[string]any{"products": []map[string]any{{"product_id": "prod_002", "category": "bakery", "quantity": 2}}}

	w := doJSON(r, http.MethodPost, path, body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if m := decode(t, w); m["status"] != "success" || m["message"] != "Recommendations updated from the order" {
		t.Fatalf("unexpected body %v", m)
	}

	w = doJSON(r, http.MethodPost, path, map[string]any{}, map[string]string{"Accept-Language": "ru"})
	if m := decode(t, w); m["message"] != "Рекомендации обновлены на основе заказа" {
		t.Fatalf("unexpected ru body %v", m)
	}

	// history is not learned yet
	w = doJSON(r, http.MethodGet, "/recommendations/"+repo.DemoUserID+"?category=bakery", nil, nil)
	if l := decodeList(t, w); len(l) != 1 || l[0]["reason"] != "might interest you" {
		t.Fatalf("ranking changed after order: %v", l)
	}

	w = doJSON(r, http.MethodPost, path, map[string]any{"products": []map[string]any{{"category": "bakery"}}}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing product_id status=%d", w.Code)
	}
	w = doJSON(r, http.MethodPost, "/recommendations/nope/update-from-order", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad user id status=%d", w.Code)
	}
}

func TestCuratedLifecycle(t *testing.T) {
	r, _ := newRecoRouter(t)

	w := doJSON(r, http.MethodPost, "/recommendations", map[string]any{
		"product_id": "prod_009", "product_name": "Rye bread", "category": "bakery", "price": 60,
		"target_audience": []string{"families"},
	}, managerHdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	m := decode(t, w)
	id, _ := m["recommendation_id"].(string)
	if m["status"] != "success" || id == "" || m["message"] != "Product added to recommendations" {
		t.Fatalf("unexpected create body %v", m)
	}

	w = doJSON(r, http.MethodGet, "/recommendations/curated", nil, nil)
	l := decodeList(t, w)
	if len(l) != 1 || l[0]["id"] != id || l[0]["name"] != "Rye bread" || l[0]["score"] != 4.0 ||
		l[0]["reason"] != "manually added by manager" || l[0]["recommendation_type"] != "personal" {
		t.Fatalf("unexpected curated list %v", l)
	}

	w = doJSON(r, http.MethodPut, "/recommendations/"+id, map[string]any{"priority": 5, "active": false}, managerHdr)
	if w.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", w.Code, w.Body.String())
	}
	if m = decode(t, w); m["status"] != "success" || m["updated_at"] != "2025-03-01T12:00:00Z" {
		t.Fatalf("unexpected update body %v", m)
	}

	// inactive entries drop out of the curated listing
	w = doJSON(r, http.MethodGet, "/recommendations/curated", nil, nil)
	if l = decodeList(t, w); len(l) != 0 {
		t.Fatalf("expected empty curated list, got %v", l)
	}

	w = doJSON(r, http.MethodDelete, "/recommendations/"+id, nil, managerHdr)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status=%d", w.Code)
	}
	if m = decode(t, w); m["deleted_recommendation_id"] != id || m["deleted_at"] != "2025-03-01T12:00:00Z" {
		t.Fatalf("unexpected delete body %v", m)
	}

	w = doJSON(r, http.MethodDelete, "/recommendations/"+id, nil, managerHdr)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d", w.Code)
	}
	w = doJSON(r, http.MethodPut, "/recommendations/"+id, map[string]any{"priority": 1, "active": true}, managerHdr)
	if w.Code != http.StatusNotFound {
		t.Fatalf("update after delete status=%d", w.Code)
	}
}

func TestCurated_InputAndRoleChecks(t *testing.T) {
	r, _ := newRecoRouter(t)
	body := map[string]any{"product_id": "p", "name": "n", "category": "c", "price": 1}

	w := doJSON(r, http.MethodPost, "/recommendations", body, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status=%d", w.Code)
	}
	w = doJSON(r, http.MethodPost, "/recommendations", body, map[string]string{middleware.HeaderUserID: otherUserID})
	if w.Code != http.StatusForbidden {
		t.Fatalf("customer status=%d", w.Code)
	}

	bad := []map[string]any{
		{"product_id": "p", "category": "c", "price": 1},                          // no name
		{"name": "n", "category": "c", "price": 1},                                // no product_id
		{"product_id": "p", "name": "n", "category": "c", "price": -1},            // negative price
		{"product_id": "p", "name": "n", "category": "c", "discount_price": -0.5}, // negative discount
	}
	for _, b := range bad {
		if w = doJSON(r, http.MethodPost, "/recommendations", b, managerHdr); w.Code != http.StatusBadRequest {
			t.Fatalf("%v: status=%d", b, w.Code)
		}
	}

	// priority and active are both required
	w = doJSON(r, http.MethodPut, "/recommendations/x", map[string]any{"priority": 1}, managerHdr)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing active status=%d", w.Code)
	}
}
