package domain

import "time"

// Idempotency stores the first successful response of an unsafe request,
// keyed by (user_id, scope, key). Scope is the route the key was used on, so
// the same key on different endpoints never collides.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT;primaryKey"`
	UserID    string    `gorm:"type:TEXT;not null;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope     string    `gorm:"type:TEXT;not null;uniqueIndex:ux_user_scope_key,priority:2"`
	Key       string    `gorm:"type:TEXT;not null;uniqueIndex:ux_user_scope_key,priority:3"`
	Status    int       `gorm:"not null"`
	Body      []byte    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
