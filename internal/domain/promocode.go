// Package domain defines the core models shared by the promocode and
// recommendation services. Types that are persisted carry GORM tags so the
// same structs back both the in-memory and the SQL stores.
package domain

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// DiscountType selects how a promocode discount is computed.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// PromoStatus is the lifecycle state of a promocode.
type PromoStatus string

const (
	PromoActive   PromoStatus = "active"
	PromoExpired  PromoStatus = "expired"
	PromoUsed     PromoStatus = "used"
	PromoInactive PromoStatus = "inactive"
)

// Promocode is a redeemable discount bound to a single owner.
//
// Code is unique and compared case-sensitively. UsageCount never exceeds
// MaxUsages, and Status only moves forward out of PromoActive.
type Promocode struct {
	ID                   string                      `gorm:"type:TEXT;primaryKey" json:"id"`
	Code                 string                      `gorm:"type:TEXT;not null;uniqueIndex" json:"code"`
	UserID               string                      `gorm:"type:TEXT;not null;index" json:"user_id"`
	DiscountType         DiscountType                `gorm:"type:TEXT;not null" json:"discount_type"`
	DiscountValue        float64                     `gorm:"not null" json:"discount_value"`
	MinOrderAmount       float64                     `gorm:"not null;default:0" json:"min_order_amount"`
	MaxDiscount          *float64                    `json:"max_discount"`
	ExpiresAt            time.Time                   `gorm:"not null;index" json:"expires_at"`
	UsageCount           int                         `gorm:"not null;default:0" json:"usage_count"`
	MaxUsages            int                         `gorm:"not null;default:1" json:"max_usages"`
	Status               PromoStatus                 `gorm:"type:TEXT;not null;index" json:"status"`
	ApplicableCategories datatypes.JSONSlice[string] `json:"applicable_categories"`
	CreatedAt            time.Time                   `json:"created_at"`
	UpdatedAt            time.Time                   `json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (Promocode) TableName() string { return "promocodes" }

// AdvanceStatus applies the time and usage driven transitions of an active
// code and reports whether Status changed. Expiry is checked before usage
// exhaustion. Non-active codes are left untouched.
func (p *Promocode) AdvanceStatus(now time.Time) bool {
	if p.Status != PromoActive {
		return false
	}
	switch {
	case now.After(p.ExpiresAt):
		p.Status = PromoExpired
	case p.UsageCount >= p.MaxUsages:
		p.Status = PromoUsed
	default:
		return false
	}
	return true
}

// RecordUsage increments the usage counter and marks the code used once the
// limit is reached.
func (p *Promocode) RecordUsage() {
	p.UsageCount++
	if p.UsageCount >= p.MaxUsages {
		p.Status = PromoUsed
	}
}

// CoversCategories reports whether an order with the given categories passes
// the category gate. An empty set on either side passes.
func (p *Promocode) CoversCategories(orderCategories []string) bool {
	if len(p.ApplicableCategories) == 0 || len(orderCategories) == 0 {
		return true
	}
	for _, c := range orderCategories {
		if slices.Contains(p.ApplicableCategories, c) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores never hand out shared state.
func (p *Promocode) Clone() *Promocode {
	cp := *p
	if p.MaxDiscount != nil {
		v := *p.MaxDiscount
		cp.MaxDiscount = &v
	}
	if p.ApplicableCategories != nil {
		cp.ApplicableCategories = slices.Clone(p.ApplicableCategories)
	}
	return &cp
}

// PromocodeAppliedEvent is published after a successful apply.
type PromocodeAppliedEvent struct {
	EventType       string      `json:"event_type"`
	PromoCode       string      `json:"promo_code"`
	UserID          string      `json:"user_id"`
	OrderID         string      `json:"order_id,omitempty"`
	DiscountApplied float64     `json:"discount_applied"`
	OrderAmount     float64     `json:"order_amount"`
	FinalAmount     float64     `json:"final_amount"`
	UsageCount      int         `json:"usage_count"`
	MaxUsages       int         `json:"max_usages"`
	Status          PromoStatus `json:"status"`
	Timestamp       time.Time   `json:"timestamp"`
}

// EventPromocodeApplied is the event_type of PromocodeAppliedEvent.
const EventPromocodeApplied = "promocode_applied"
