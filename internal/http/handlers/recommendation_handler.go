// Recommendation HTTP handlers.
//
// This file exposes the recommendation service endpoints:
//   - GET    /recommendations/{user_id}                    (personal, scored)
//   - POST   /recommendations/{user_id}/update-from-order  (history hook)
//   - GET    /recommendations                              (popular)
//   - GET    /recommendations/curated                      (manager picks)
//   - POST   /recommendations                              (manager: add)
//   - PUT    /recommendations/{id}                         (manager: update)
//   - DELETE /recommendations/{id}                         (manager: delete)
//
// The manager role is enforced by middleware on the route group.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-promo-reco/internal/domain"
	"github.com/tbourn/go-promo-reco/internal/services"
	"github.com/tbourn/go-promo-reco/internal/utils"
)

// RecommendationService is the recommendation engine as seen by the handlers.
type RecommendationService interface {
	GetPersonalRecommendations(ctx context.Context, userID string, limit int, category string) ([]domain.Recommendation, error)
	GetPopularRecommendations(ctx context.Context, category string, limit int) ([]domain.Recommendation, error)
	CreateRecommendation(ctx context.Context, in services.CuratedInput) (string, error)
	UpdateRecommendation(ctx context.Context, id string, priority int, active bool, expiresAt *time.Time) (*domain.CuratedRecommendation, error)
	DeleteRecommendation(ctx context.Context, id string) error
	ListCurated(ctx context.Context) ([]domain.CuratedRecommendation, error)
	UpdateFromOrder(ctx context.Context, userID string, products []services.OrderedProduct) error
}

// RecommendationHandlers groups the recommendation endpoints.
type RecommendationHandlers struct {
	svc RecommendationService
	now func() time.Time
}

// NewRecommendationHandlers binds the handlers to svc.
func NewRecommendationHandlers(svc RecommendationService) *RecommendationHandlers {
	return &RecommendationHandlers{svc: svc, now: time.Now}
}

// Query limits.
const (
	personalLimitDefault = 10
	personalLimitMax     = 50
	popularLimitDefault  = 20
	popularLimitMax      = 100
)

//
// DTOs
//

// OrderedProductRequest is one line of an order notification.
type OrderedProductRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Category  string `json:"category"`
	Quantity  int    `json:"quantity" binding:"gte=0"`
}

// UpdateFromOrderRequest is the body of POST /recommendations/{user_id}/update-from-order.
type UpdateFromOrderRequest struct {
	Products []OrderedProductRequest `json:"products" binding:"dive"`
}

// CreateRecommendationRequest is the body of POST /recommendations. Name
// falls back to product_name when absent.
type CreateRecommendationRequest struct {
	ProductID      string   `json:"product_id" binding:"required"`
	Name           string   `json:"name"`
	ProductName    string   `json:"product_name"`
	Category       string   `json:"category" binding:"required"`
	Price          float64  `json:"price" binding:"gte=0"`
	DiscountPrice  *float64 `json:"discount_price" binding:"omitempty,gte=0"`
	TargetAudience []string `json:"target_audience"`
}

// UpdateRecommendationRequest is the body of PUT /recommendations/{id}.
// Priority and active are required.
type UpdateRecommendationRequest struct {
	Priority  *int       `json:"priority" binding:"required"`
	Active    *bool      `json:"active" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// StatusResponse is the body of manager and hook endpoints.
type StatusResponse struct {
	Status           string     `json:"status"`
	Message          string     `json:"message"`
	RecommendationID string     `json:"recommendation_id,omitempty"`
	DeletedID        string     `json:"deleted_recommendation_id,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

func (h *RecommendationHandlers) stamp() *time.Time {
	t := h.now().UTC()
	return &t
}

//
// Handlers
//

// GetPersonal returns scored recommendations for a user, best first.
func (h *RecommendationHandlers) GetPersonal(c *gin.Context) {
	uid, valid := parseUserID(c.Param("user_id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeInvalidUserID, "user_id must be a UUID")
		return
	}
	limit, err := utils.ParseLimit(c.Query("limit"), personalLimitDefault, 1, personalLimitMax)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidLimit, err.Error())
		return
	}

	recs, err := h.svc.GetPersonalRecommendations(c.Request.Context(), uid, limit, c.Query("category"))
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, http.StatusOK, recs)
}

// GetPopular returns catalog products in catalog order.
func (h *RecommendationHandlers) GetPopular(c *gin.Context) {
	limit, err := utils.ParseLimit(c.Query("limit"), popularLimitDefault, 1, popularLimitMax)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidLimit, err.Error())
		return
	}
	recs, err := h.svc.GetPopularRecommendations(c.Request.Context(), c.Query("category"), limit)
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, http.StatusOK, recs)
}

// UpdateFromOrder hands a finished order to the history hook.
func (h *RecommendationHandlers) UpdateFromOrder(c *gin.Context) {
	uid, valid := parseUserID(c.Param("user_id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeInvalidUserID, "user_id must be a UUID")
		return
	}
	var req UpdateFromOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	products := make([]services.OrderedProduct, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, services.OrderedProduct{
			ProductID: p.ProductID,
			Category:  p.Category,
			Quantity:  p.Quantity,
		})
	}
	if err := h.svc.UpdateFromOrder(c.Request.Context(), uid, products); err != nil {
		internalError(c, err)
		return
	}
	ok(c, http.StatusOK, StatusResponse{Status: "success", Message: printer(c).Sprintf(msgOrderProcessed)})
}

// ListCurated returns live manager-added entries by priority.
func (h *RecommendationHandlers) ListCurated(c *gin.Context) {
	list, err := h.svc.ListCurated(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

// CreateRecommendation adds a curated entry.
func (h *RecommendationHandlers) CreateRecommendation(c *gin.Context) {
	var req CreateRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.ProductName)
	}
	if name == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}

	id, err := h.svc.CreateRecommendation(c.Request.Context(), services.CuratedInput{
		ProductID:      strings.TrimSpace(req.ProductID),
		Name:           name,
		Category:       strings.TrimSpace(req.Category),
		Price:          req.Price,
		DiscountPrice:  req.DiscountPrice,
		TargetAudience: req.TargetAudience,
	})
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, http.StatusCreated, StatusResponse{
		Status:           "success",
		Message:          printer(c).Sprintf(msgRecCreated),
		RecommendationID: id,
	})
}

// UpdateRecommendation changes priority, active flag and expiry.
func (h *RecommendationHandlers) UpdateRecommendation(c *gin.Context) {
	var req UpdateRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "priority and active are required")
		return
	}

	_, err := h.svc.UpdateRecommendation(c.Request.Context(), c.Param("id"), *req.Priority, *req.Active, req.ExpiresAt)
	switch {
	case errors.Is(err, services.ErrRecommendationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "recommendation not found")
		return
	case err != nil:
		internalError(c, err)
		return
	}
	ok(c, http.StatusOK, StatusResponse{
		Status:    "success",
		Message:   printer(c).Sprintf(msgRecUpdated),
		UpdatedAt: h.stamp(),
	})
}

// DeleteRecommendation removes a curated entry.
func (h *RecommendationHandlers) DeleteRecommendation(c *gin.Context) {
	id := c.Param("id")
	err := h.svc.DeleteRecommendation(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrRecommendationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "recommendation not found")
		return
	case err != nil:
		internalError(c, err)
		return
	}
	ok(c, http.StatusOK, StatusResponse{
		Status:    "success",
		Message:   printer(c).Sprintf(msgRecDeleted),
		DeletedID: id,
		DeletedAt: h.stamp(),
	})
}
