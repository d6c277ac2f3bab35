// Package services – PromoEngine
//
// PromoEngine validates orders against promocodes, computes discounts, and
// commits usage when an order is finalized. Validation corrects stale status
// lazily: an active code found past its expiry or out of usages is moved to
// Expired or Used on the read path, and that change is persisted.
//
// Check-then-act sequences (validate, apply, create) run under one engine
// lock so concurrent requests cannot lose usage increments or race on
// duplicate codes.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-promo-reco/internal/domain"
	"github.com/tbourn/go-promo-reco/internal/repo"
)

// PromoStore is the persistence contract of PromoEngine. GetByCode returns
// repo.ErrNotFound for unknown codes and Create returns repo.ErrDuplicate for
// an existing code.
type PromoStore interface {
	GetByCode(ctx context.Context, code string) (*domain.Promocode, error)
	ListByOwner(ctx context.Context, userID string) ([]domain.Promocode, error)
	ListActive(ctx context.Context, now time.Time) ([]domain.Promocode, error)
	Create(ctx context.Context, p *domain.Promocode) error
	Save(ctx context.Context, p *domain.Promocode) error
}

// EventPublisher receives a notification after every successful apply.
type EventPublisher interface {
	PublishPromocodeApplied(ctx context.Context, ev domain.PromocodeAppliedEvent) error
}

// Reason is the machine-readable outcome code of a rejected request.
type Reason string

const (
	ReasonNotFound           Reason = "not_found"
	ReasonNotEligible        Reason = "not_eligible_for_user"
	ReasonInactive           Reason = "inactive"
	ReasonRequirementsNotMet Reason = "requirements_not_met"
	ReasonDuplicateCode      Reason = "duplicate_code"
)

// ValidateInput is a proposed order checked against a code.
type ValidateInput struct {
	Code        string
	UserID      string
	OrderAmount float64
	Categories  []string
}

// ApplyInput is a finalized order redeeming a code.
type ApplyInput struct {
	Code        string
	UserID      string
	OrderID     string
	OrderAmount float64
	FinalAmount float64
}

// CreateInput describes a new promocode.
type CreateInput struct {
	Code                 string
	UserID               string
	DiscountType         domain.DiscountType
	DiscountValue        float64
	MinOrderAmount       float64
	MaxDiscount          *float64
	ExpiresAt            time.Time
	MaxUsages            *int // nil means a single use
	ApplicableCategories []string
}

// DiscountQuote is the payload of a successful validation.
type DiscountQuote struct {
	PromoCode            string    `json:"promo_code"`
	DiscountAmount       float64   `json:"discount_amount"`
	DiscountPercent      *float64  `json:"discount_percent"`
	MinOrderAmount       float64   `json:"min_order_amount"`
	MaxDiscount          *float64  `json:"max_discount"`
	ExpiresAt            time.Time `json:"expires_at"`
	ApplicableCategories []string  `json:"applicable_categories"`
}

// ValidationResult is either {valid:false, message:<reason>} or
// {valid:true, ...DiscountQuote}.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Message Reason `json:"message,omitempty"`
	*DiscountQuote
}

func reject(r Reason) ValidationResult { return ValidationResult{Message: r} }

// ApplyResult reports a redemption. When Rejected is non-nil the code was not
// applied and Rejected carries the validation failure verbatim.
type ApplyResult struct {
	Status          string            `json:"status"`
	PromoCode       string            `json:"promo_code"`
	OrderID         string            `json:"order_id,omitempty"`
	DiscountApplied float64           `json:"discount_applied"`
	UsageCount      int               `json:"usage_count"`
	MaxUsages       int               `json:"max_usages"`
	FinalAmount     float64           `json:"final_amount"`
	Rejected        *ValidationResult `json:"-"`
}

// Applied reports whether usage was committed.
func (r ApplyResult) Applied() bool { return r.Rejected == nil }

// CreateResult reports a create attempt: status "created" with the new id,
// or status "error" with message "duplicate_code".
type CreateResult struct {
	Status    string `json:"status"`
	ID        string `json:"id,omitempty"`
	PromoCode string `json:"promo_code"`
	Message   Reason `json:"message,omitempty"`
}

// Created reports whether a record was added.
func (r CreateResult) Created() bool { return r.Status == "created" }

// PromocodeView is the read-only projection used by info lookups.
type PromocodeView struct {
	Code                 string              `json:"code"`
	DiscountType         domain.DiscountType `json:"discount_type"`
	DiscountValue        float64             `json:"discount_value"`
	MinOrderAmount       float64             `json:"min_order_amount"`
	MaxDiscount          *float64            `json:"max_discount"`
	ExpiresAt            time.Time           `json:"expires_at"`
	UsageCount           int                 `json:"usage_count"`
	MaxUsages            int                 `json:"max_usages"`
	Status               domain.PromoStatus  `json:"status"`
	ApplicableCategories []string            `json:"applicable_categories"`
}

func viewOf(p *domain.Promocode) PromocodeView {
	cats := []string(p.ApplicableCategories)
	if cats == nil {
		cats = []string{}
	}
	return PromocodeView{
		Code:                 p.Code,
		DiscountType:         p.DiscountType,
		DiscountValue:        p.DiscountValue,
		MinOrderAmount:       p.MinOrderAmount,
		MaxDiscount:          p.MaxDiscount,
		ExpiresAt:            p.ExpiresAt,
		UsageCount:           p.UsageCount,
		MaxUsages:            p.MaxUsages,
		Status:               p.Status,
		ApplicableCategories: cats,
	}
}

// PromoEngine implements promocode validation, redemption and creation.
type PromoEngine struct {
	Store PromoStore

	// Events is optional. Publish failures are logged and never change the
	// outcome of Apply.
	Events EventPublisher

	// Now defaults to time.Now.
	Now func() time.Time

	mu sync.RWMutex
}

// NewPromoEngine constructs a PromoEngine over store.
func NewPromoEngine(store PromoStore, events EventPublisher) *PromoEngine {
	return &PromoEngine{Store: store, Events: events, Now: time.Now}
}

func (e *PromoEngine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *PromoEngine) tracer() trace.Tracer { return otel.Tracer("services/PromoEngine") }

// Validate checks a proposed order against code. The checks short-circuit in
// order: existence, ownership, status (with lazy transition), order
// requirements. Only store failures are returned as errors.
func (e *PromoEngine) Validate(ctx context.Context, in ValidateInput) (ValidationResult, error) {
	ctx, span := e.tracer().Start(ctx, "Validate",
		trace.WithAttributes(
			attribute.String("promo.code", in.Code),
			attribute.String("user.id", in.UserID),
		),
	)
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	res, _, err := e.validateLocked(ctx, in)
	if err != nil {
		span.RecordError(err)
		return ValidationResult{}, err
	}
	observeValidation(res)
	return res, nil
}

// validateLocked runs the validation pipeline. The caller holds e.mu.
func (e *PromoEngine) validateLocked(ctx context.Context, in ValidateInput) (ValidationResult, *domain.Promocode, error) {
	p, err := e.Store.GetByCode(ctx, in.Code)
	if errors.Is(err, repo.ErrNotFound) {
		return reject(ReasonNotFound), nil, nil
	}
	if err != nil {
		return ValidationResult{}, nil, err
	}

	if p.UserID != in.UserID {
		return reject(ReasonNotEligible), p, nil
	}

	if p.Status != domain.PromoActive {
		return reject(ReasonInactive), p, nil
	}
	if p.AdvanceStatus(e.now()) {
		if err := e.Store.Save(ctx, p); err != nil {
			return ValidationResult{}, nil, err
		}
		promoTransitions.WithLabelValues(string(p.Status)).Inc()
		zerolog.Ctx(ctx).Info().
			Str("promo_code", p.Code).
			Str("status", string(p.Status)).
			Msg("promocode status corrected on validation")
		return reject(ReasonInactive), p, nil
	}

	if in.OrderAmount < p.MinOrderAmount || !p.CoversCategories(in.Categories) {
		return reject(ReasonRequirementsNotMet), p, nil
	}

	quote := &DiscountQuote{
		PromoCode:            p.Code,
		DiscountAmount:       discountFor(p, in.OrderAmount),
		MinOrderAmount:       p.MinOrderAmount,
		MaxDiscount:          p.MaxDiscount,
		ExpiresAt:            p.ExpiresAt,
		ApplicableCategories: []string(p.ApplicableCategories),
	}
	if quote.ApplicableCategories == nil {
		quote.ApplicableCategories = []string{}
	}
	if p.DiscountType == domain.DiscountPercentage {
		v := p.DiscountValue
		quote.DiscountPercent = &v
	}
	return ValidationResult{Valid: true, DiscountQuote: quote}, p, nil
}

// discountFor computes the discount for amount. Percentage discounts are
// capped at MaxDiscount when set and rounded half away from zero to cents;
// fixed discounts are returned verbatim.
func discountFor(p *domain.Promocode, amount float64) float64 {
	if p.DiscountType != domain.DiscountPercentage {
		return p.DiscountValue
	}
	d := decimal.NewFromFloat(amount).
		Mul(decimal.NewFromFloat(p.DiscountValue)).
		Div(decimal.NewFromInt(100))
	if p.MaxDiscount != nil {
		d = decimal.Min(d, decimal.NewFromFloat(*p.MaxDiscount))
	}
	f, _ := d.Round(2).Float64()
	return f
}

// Apply re-validates the order without a category filter and, when valid,
// records one usage. Apply is not idempotent: each call consumes a usage.
func (e *PromoEngine) Apply(ctx context.Context, in ApplyInput) (ApplyResult, error) {
	ctx, span := e.tracer().Start(ctx, "Apply",
		trace.WithAttributes(
			attribute.String("promo.code", in.Code),
			attribute.String("user.id", in.UserID),
			attribute.String("order.id", in.OrderID),
		),
	)
	defer span.End()

	res, ev, err := e.applyLocked(ctx, in)
	if err != nil {
		span.RecordError(err)
		return ApplyResult{}, err
	}
	if ev != nil {
		e.publish(ctx, *ev)
	}
	return res, nil
}

func (e *PromoEngine) applyLocked(ctx context.Context, in ApplyInput) (ApplyResult, *domain.PromocodeAppliedEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, p, err := e.validateLocked(ctx, ValidateInput{
		Code:        in.Code,
		UserID:      in.UserID,
		OrderAmount: in.OrderAmount,
	})
	if err != nil {
		return ApplyResult{}, nil, err
	}
	observeValidation(v)
	if !v.Valid {
		return ApplyResult{Rejected: &v}, nil, nil
	}

	p.RecordUsage()
	if err := e.Store.Save(ctx, p); err != nil {
		return ApplyResult{}, nil, err
	}
	promoApplies.Inc()
	if p.Status == domain.PromoUsed {
		promoTransitions.WithLabelValues(string(domain.PromoUsed)).Inc()
	}

	now := e.now()
	zerolog.Ctx(ctx).Info().
		Str("promo_code", p.Code).
		Str("order_id", in.OrderID).
		Int("usage_count", p.UsageCount).
		Int("max_usages", p.MaxUsages).
		Float64("discount", v.DiscountAmount).
		Msg("promocode applied")

	res := ApplyResult{
		Status:          "applied",
		PromoCode:       p.Code,
		OrderID:         in.OrderID,
		DiscountApplied: v.DiscountAmount,
		UsageCount:      p.UsageCount,
		MaxUsages:       p.MaxUsages,
		FinalAmount:     in.FinalAmount,
	}
	ev := &domain.PromocodeAppliedEvent{
		EventType:       domain.EventPromocodeApplied,
		PromoCode:       p.Code,
		UserID:          in.UserID,
		OrderID:         in.OrderID,
		DiscountApplied: v.DiscountAmount,
		OrderAmount:     in.OrderAmount,
		FinalAmount:     in.FinalAmount,
		UsageCount:      p.UsageCount,
		MaxUsages:       p.MaxUsages,
		Status:          p.Status,
		Timestamp:       now,
	}
	return res, ev, nil
}

func (e *PromoEngine) publish(ctx context.Context, ev domain.PromocodeAppliedEvent) {
	if e.Events == nil {
		return
	}
	if err := e.Events.PublishPromocodeApplied(ctx, ev); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("promo_code", ev.PromoCode).
			Msg("publish promocode_applied failed")
	}
}

// Create adds a new active promocode. A duplicate code is a business outcome
// (status "error", message "duplicate_code"); malformed input returns an
// error wrapping ErrInvalidPromocode.
func (e *PromoEngine) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	ctx, span := e.tracer().Start(ctx, "Create",
		trace.WithAttributes(attribute.String("promo.code", in.Code)),
	)
	defer span.End()

	if err := checkCreateInput(&in); err != nil {
		return CreateResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	dup := CreateResult{Status: "error", PromoCode: in.Code, Message: ReasonDuplicateCode}
	if _, err := e.Store.GetByCode(ctx, in.Code); err == nil {
		return dup, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		span.RecordError(err)
		return CreateResult{}, err
	}

	p := &domain.Promocode{
		Code:                 in.Code,
		UserID:               in.UserID,
		DiscountType:         in.DiscountType,
		DiscountValue:        in.DiscountValue,
		MinOrderAmount:       in.MinOrderAmount,
		MaxDiscount:          in.MaxDiscount,
		ExpiresAt:            in.ExpiresAt.UTC(),
		UsageCount:           0,
		MaxUsages:            *in.MaxUsages,
		Status:               domain.PromoActive,
		ApplicableCategories: in.ApplicableCategories,
		CreatedAt:            e.now(),
	}
	if err := e.Store.Create(ctx, p); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return dup, nil
		}
		span.RecordError(err)
		return CreateResult{}, err
	}

	zerolog.Ctx(ctx).Info().Str("promo_code", p.Code).Str("id", p.ID).Msg("promocode created")
	return CreateResult{Status: "created", ID: p.ID, PromoCode: p.Code}, nil
}

// checkCreateInput validates and normalizes in. A zero MaxDiscount means no
// cap; an omitted MaxUsages defaults to a single use.
func checkCreateInput(in *CreateInput) error {
	in.Code = strings.TrimSpace(in.Code)
	switch {
	case in.Code == "":
		return fmt.Errorf("%w: code is required", ErrInvalidPromocode)
	case strings.TrimSpace(in.UserID) == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidPromocode)
	case !in.DiscountType.Valid():
		return fmt.Errorf("%w: unknown discount_type %q", ErrInvalidPromocode, in.DiscountType)
	case in.DiscountType == domain.DiscountPercentage && (in.DiscountValue <= 0 || in.DiscountValue > 100):
		return fmt.Errorf("%w: percentage discount_value must be in (0,100]", ErrInvalidPromocode)
	case in.DiscountType == domain.DiscountFixed && in.DiscountValue <= 0:
		return fmt.Errorf("%w: fixed discount_value must be > 0", ErrInvalidPromocode)
	case in.MinOrderAmount < 0:
		return fmt.Errorf("%w: min_order_amount must be >= 0", ErrInvalidPromocode)
	case in.MaxDiscount != nil && *in.MaxDiscount < 0:
		return fmt.Errorf("%w: max_discount must be >= 0", ErrInvalidPromocode)
	case in.MaxUsages != nil && *in.MaxUsages < 1:
		return fmt.Errorf("%w: max_usages must be >= 1", ErrInvalidPromocode)
	case in.ExpiresAt.IsZero():
		return fmt.Errorf("%w: expires_at is required", ErrInvalidPromocode)
	}
	if in.MaxUsages == nil {
		one := 1
		in.MaxUsages = &one
	}
	if in.MaxDiscount != nil && *in.MaxDiscount == 0 {
		in.MaxDiscount = nil
	}
	return nil
}

// GetByCode returns the projection of code or ErrPromocodeNotFound.
func (e *PromoEngine) GetByCode(ctx context.Context, code string) (PromocodeView, error) {
	ctx, span := e.tracer().Start(ctx, "GetByCode",
		trace.WithAttributes(attribute.String("promo.code", code)),
	)
	defer span.End()

	e.mu.RLock()
	defer e.mu.RUnlock()

	p, err := e.Store.GetByCode(ctx, code)
	if errors.Is(err, repo.ErrNotFound) {
		return PromocodeView{}, ErrPromocodeNotFound
	}
	if err != nil {
		return PromocodeView{}, err
	}
	return viewOf(p), nil
}

// GetForUser lists every code owned by userID regardless of status.
func (e *PromoEngine) GetForUser(ctx context.Context, userID string) ([]PromocodeView, error) {
	ctx, span := e.tracer().Start(ctx, "GetForUser",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	e.mu.RLock()
	defer e.mu.RUnlock()

	list, err := e.Store.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	return views(list), nil
}

// ListActive lists codes with status active that expire after now. It does
// not correct stale statuses; only Validate does.
func (e *PromoEngine) ListActive(ctx context.Context) ([]PromocodeView, error) {
	ctx, span := e.tracer().Start(ctx, "ListActive")
	defer span.End()

	e.mu.RLock()
	defer e.mu.RUnlock()

	list, err := e.Store.ListActive(ctx, e.now())
	if err != nil {
		return nil, err
	}
	return views(list), nil
}

func views(list []domain.Promocode) []PromocodeView {
	out := make([]PromocodeView, 0, len(list))
	for i := range list {
		out = append(out, viewOf(&list[i]))
	}
	return out
}

func observeValidation(r ValidationResult) {
	if r.Valid {
		promoValidations.WithLabelValues("valid").Inc()
		return
	}
	promoValidations.WithLabelValues(string(r.Message)).Inc()
}
