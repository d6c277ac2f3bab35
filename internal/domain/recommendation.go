package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Product is catalog reference data. Position keeps catalog order stable
// across backends.
type Product struct {
	ID            string   `gorm:"type:TEXT;primaryKey" json:"product_id"`
	Position      int      `gorm:"not null;index" json:"-"`
	Name          string   `gorm:"type:TEXT;not null" json:"name"`
	Category      string   `gorm:"type:TEXT;not null;index" json:"category"`
	Price         float64  `gorm:"not null" json:"price"`
	DiscountPrice *float64 `json:"discount_price"`
	Rating        float64  `gorm:"not null" json:"rating"`
	OrdersCount   int      `gorm:"not null;default:0" json:"orders_count"`
}

// TableName implements the GORM tabler interface.
func (Product) TableName() string { return "products" }

// UserHistoryEntry is a rating a user gave to a product.
type UserHistoryEntry struct {
	ID        uint    `gorm:"primaryKey" json:"-"`
	UserID    string  `gorm:"type:TEXT;not null;index" json:"-"`
	ProductID string  `gorm:"type:TEXT;not null" json:"product_id"`
	Category  string  `gorm:"type:TEXT;not null" json:"category"`
	Rating    float64 `gorm:"not null" json:"rating"`
}

// TableName implements the GORM tabler interface.
func (UserHistoryEntry) TableName() string { return "user_history" }

// RecommendationType distinguishes personal from popular suggestions.
type RecommendationType string

const (
	RecommendationPersonal RecommendationType = "personal"
	RecommendationPopular  RecommendationType = "popular"
)

// Recommendation is a scored product suggestion, recomputed per request.
type Recommendation struct {
	ProductID     string   `json:"product_id"`
	Name          string   `json:"name"`
	Category      string   `json:"category"`
	Price         float64  `json:"price"`
	DiscountPrice *float64 `json:"discount_price"`
	Score         float64  `json:"score"`
	Reason        string   `json:"reason"`
}

// CuratedRecommendation is a manager-added entry.
type CuratedRecommendation struct {
	ID             string                      `gorm:"type:TEXT;primaryKey" json:"id"`
	ProductID      string                      `gorm:"type:TEXT;not null;index" json:"product_id"`
	Name           string                      `gorm:"type:TEXT;not null" json:"name"`
	Category       string                      `gorm:"type:TEXT;not null" json:"category"`
	Price          float64                     `json:"price"`
	DiscountPrice  *float64                    `json:"discount_price"`
	Type           RecommendationType          `gorm:"type:TEXT;not null" json:"recommendation_type"`
	Score          float64                     `json:"score"`
	Reason         string                      `gorm:"type:TEXT" json:"reason"`
	TargetAudience datatypes.JSONSlice[string] `json:"target_audience"`
	Priority       int                         `gorm:"not null;default:0" json:"priority"`
	Active         bool                        `gorm:"not null;default:true" json:"active"`
	ExpiresAt      *time.Time                  `json:"expires_at"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (CuratedRecommendation) TableName() string { return "curated_recommendations" }

// Live reports whether the entry is active and not expired at now.
func (r *CuratedRecommendation) Live(now time.Time) bool {
	return r.Active && (r.ExpiresAt == nil || r.ExpiresAt.After(now))
}
