// Promocode HTTP handlers.
//
// This file exposes the promocode service endpoints:
//   - POST /promocodes/validate        (dry-run an order against a code)
//   - POST /promocodes/apply           (redeem a code for a finalized order)
//   - POST /promocodes                 (create)
//   - GET  /promocodes/user/{user_id}  (codes owned by a user)
//   - GET  /promocodes/active          (currently redeemable codes)
//   - GET  /promocodes/{promo_code}    (single code projection)
//
// Rejections (unknown code, wrong owner, inactive, unmet requirements,
// duplicate code) are answered with 200 and a discriminated body; only
// malformed requests, missing resources and failures use the error envelope.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-promo-reco/internal/domain"
	"github.com/tbourn/go-promo-reco/internal/http/middleware"
	"github.com/tbourn/go-promo-reco/internal/services"
)

// PromoService is the promocode engine as seen by the handlers.
type PromoService interface {
	Validate(ctx context.Context, in services.ValidateInput) (services.ValidationResult, error)
	Apply(ctx context.Context, in services.ApplyInput) (services.ApplyResult, error)
	Create(ctx context.Context, in services.CreateInput) (services.CreateResult, error)
	GetByCode(ctx context.Context, code string) (services.PromocodeView, error)
	GetForUser(ctx context.Context, userID string) ([]services.PromocodeView, error)
	ListActive(ctx context.Context) ([]services.PromocodeView, error)
}

// PromoHandlers groups the promocode endpoints.
type PromoHandlers struct {
	svc PromoService
}

// NewPromoHandlers binds the handlers to svc.
func NewPromoHandlers(svc PromoService) *PromoHandlers {
	return &PromoHandlers{svc: svc}
}

//
// DTOs
//

// ValidateRequest is the body of POST /promocodes/validate.
type ValidateRequest struct {
	PromoCode   string   `json:"promo_code" binding:"required"`
	UserID      string   `json:"user_id" binding:"required"`
	OrderAmount float64  `json:"order_amount" binding:"gte=0"`
	Categories  []string `json:"categories"`
}

// ApplyRequest is the body of POST /promocodes/apply.
type ApplyRequest struct {
	PromoCode   string  `json:"promo_code" binding:"required"`
	UserID      string  `json:"user_id" binding:"required"`
	OrderID     string  `json:"order_id"`
	OrderAmount float64 `json:"order_amount" binding:"gte=0"`
	FinalAmount float64 `json:"final_amount" binding:"gte=0"`
}

// CreatePromocodeRequest is the body of POST /promocodes.
type CreatePromocodeRequest struct {
	Code                 string    `json:"code" binding:"required"`
	UserID               string    `json:"user_id" binding:"required"`
	DiscountType         string    `json:"discount_type" binding:"required"`
	DiscountValue        float64   `json:"discount_value"`
	MinOrderAmount       float64   `json:"min_order_amount"`
	MaxDiscount          *float64  `json:"max_discount"`
	ExpiresAt            time.Time `json:"expires_at"`
	MaxUsages            *int      `json:"max_usages"`
	ApplicableCategories []string  `json:"applicable_categories"`
}

// RejectionResponse is the 200 body of a refused validate or apply.
type RejectionResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// ApplyResponse is the 200 body of a successful apply.
type ApplyResponse struct {
	services.ApplyResult
	Detail string `json:"detail"`
}

// CreateResponse is the body of POST /promocodes.
type CreateResponse struct {
	services.CreateResult
	Detail string `json:"detail"`
}

//
// Helpers
//

// parseUserID accepts canonical UUIDs only.
func parseUserID(raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// actingAs rejects bodies that name a user other than the authenticated
// caller. Anonymous callers may act for any user.
func actingAs(c *gin.Context, userID string) bool {
	caller, ok := middleware.UserID(c)
	if !ok {
		return true
	}
	if id, valid := parseUserID(caller); valid {
		caller = id
	}
	if caller == userID {
		return true
	}
	fail(c, http.StatusForbidden, ErrCodeForbidden, "user_id does not match the authenticated user")
	return false
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

//
// Handlers
//

// ValidatePromocode checks an order against a code without consuming it.
func (h *PromoHandlers) ValidatePromocode(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	uid, valid := parseUserID(req.UserID)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeInvalidUserID, "user_id must be a UUID")
		return
	}
	if !actingAs(c, uid) {
		return
	}

	res, err := h.svc.Validate(c.Request.Context(), services.ValidateInput{
		Code:        strings.TrimSpace(req.PromoCode),
		UserID:      uid,
		OrderAmount: req.OrderAmount,
		Categories:  req.Categories,
	})
	if err != nil {
		internalError(c, err)
		return
	}
	if !res.Valid {
		ok(c, http.StatusOK, rejection(c, res))
		return
	}
	ok(c, http.StatusOK, res)
}

func rejection(c *gin.Context, res services.ValidationResult) RejectionResponse {
	return RejectionResponse{
		Valid:   false,
		Message: string(res.Message),
		Detail:  printer(c).Sprintf(reasonKey(res.Message)),
	}
}

// ApplyPromocode redeems a code. Each successful call consumes one usage;
// clients retrying a request should send an Idempotency-Key.
func (h *PromoHandlers) ApplyPromocode(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	uid, valid := parseUserID(req.UserID)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeInvalidUserID, "user_id must be a UUID")
		return
	}
	if !actingAs(c, uid) {
		return
	}

	res, err := h.svc.Apply(c.Request.Context(), services.ApplyInput{
		Code:        strings.TrimSpace(req.PromoCode),
		UserID:      uid,
		OrderID:     strings.TrimSpace(req.OrderID),
		OrderAmount: req.OrderAmount,
		FinalAmount: req.FinalAmount,
	})
	if err != nil {
		internalError(c, err)
		return
	}
	if !res.Applied() {
		middleware.SkipIdempotencyRecord(c)
		body := rejection(c, *res.Rejected)
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"valid":   false,
			"message": body.Message,
			"detail":  body.Detail,
		})
		return
	}
	ok(c, http.StatusOK, ApplyResponse{
		ApplyResult: res,
		Detail:      printer(c).Sprintf(msgApplied, formatAmount(res.DiscountApplied)),
	})
}

// CreatePromocode adds a code. A duplicate code is answered with 200 and
// status "error"; invalid field values with 400.
func (h *PromoHandlers) CreatePromocode(c *gin.Context) {
	var req CreatePromocodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	uid, valid := parseUserID(req.UserID)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeInvalidUserID, "user_id must be a UUID")
		return
	}

	res, err := h.svc.Create(c.Request.Context(), services.CreateInput{
		Code:                 req.Code,
		UserID:               uid,
		DiscountType:         domain.DiscountType(strings.ToLower(strings.TrimSpace(req.DiscountType))),
		DiscountValue:        req.DiscountValue,
		MinOrderAmount:       req.MinOrderAmount,
		MaxDiscount:          req.MaxDiscount,
		ExpiresAt:            req.ExpiresAt,
		MaxUsages:            req.MaxUsages,
		ApplicableCategories: req.ApplicableCategories,
	})
	switch {
	case errors.Is(err, services.ErrInvalidPromocode):
		fail(c, http.StatusBadRequest, ErrCodeInvalidPromocode, err.Error())
		return
	case err != nil:
		internalError(c, err)
		return
	}

	if !res.Created() {
		middleware.SkipIdempotencyRecord(c)
		ok(c, http.StatusOK, CreateResponse{CreateResult: res, Detail: printer(c).Sprintf(reasonKey(res.Message))})
		return
	}
	ok(c, http.StatusCreated, CreateResponse{CreateResult: res, Detail: printer(c).Sprintf(msgCreated)})
}

// GetUserPromocodes lists every code owned by a user.
func (h *PromoHandlers) GetUserPromocodes(c *gin.Context) {
	uid, valid := parseUserID(c.Param("user_id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeInvalidUserID, "user_id must be a UUID")
		return
	}
	list, err := h.svc.GetForUser(c.Request.Context(), uid)
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

// GetActivePromocodes lists codes that are active and not yet expired.
func (h *PromoHandlers) GetActivePromocodes(c *gin.Context) {
	list, err := h.svc.ListActive(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

// GetPromocode returns one code or 404.
func (h *PromoHandlers) GetPromocode(c *gin.Context) {
	view, err := h.svc.GetByCode(c.Request.Context(), c.Param("promo_code"))
	switch {
	case errors.Is(err, services.ErrPromocodeNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "promocode not found")
		return
	case err != nil:
		internalError(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}
