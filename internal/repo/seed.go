package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-promo-reco/internal/domain"
)

// DemoUserID owns every demo promocode.
const DemoUserID = "12345678-1234-1234-1234-123456789012"

func ptr(v float64) *float64 { return &v }

// DemoPromocodes returns the demo codes with expiries relative to now so a
// freshly started service always has redeemable codes.
func DemoPromocodes(now time.Time) []domain.Promocode {
	now = now.UTC()
	return []domain.Promocode{
		{
			Code:                 "WELCOME10",
			UserID:               DemoUserID,
			DiscountType:         domain.DiscountPercentage,
			DiscountValue:        10,
			MinOrderAmount:       500,
			MaxDiscount:          ptr(200),
			ExpiresAt:            now.AddDate(0, 6, 0),
			UsageCount:           0,
			MaxUsages:            1,
			Status:               domain.PromoActive,
			ApplicableCategories: []string{"dairy", "bakery", "beverages"},
			CreatedAt:            now,
		},
		{
			Code:                 "SUMMER25",
			UserID:               DemoUserID,
			DiscountType:         domain.DiscountPercentage,
			DiscountValue:        25,
			MinOrderAmount:       1000,
			MaxDiscount:          ptr(500),
			ExpiresAt:            now.AddDate(0, 3, 0),
			UsageCount:           1,
			MaxUsages:            5,
			Status:               domain.PromoActive,
			ApplicableCategories: []string{"dairy", "meat", "fruits"},
			CreatedAt:            now.Add(time.Second),
		},
		{
			Code:           "FREESHIP",
			UserID:         DemoUserID,
			DiscountType:   domain.DiscountFixed,
			DiscountValue:  150,
			MinOrderAmount: 800,
			ExpiresAt:      now.AddDate(0, 1, 0),
			UsageCount:     2,
			MaxUsages:      3,
			Status:         domain.PromoActive,
			CreatedAt:      now.Add(2 * time.Second),
		},
	}
}

// DemoProducts returns the demo catalog in catalog order.
func DemoProducts() []domain.Product {
	return []domain.Product{
		{ID: "prod_001", Position: 1, Name: "Fresh milk", Category: "dairy", Price: 89.99, DiscountPrice: ptr(79.99), Rating: 4.5, OrdersCount: 1542},
		{ID: "prod_002", Position: 2, Name: "White bread", Category: "bakery", Price: 45.50, Rating: 4.7, OrdersCount: 2034},
		{ID: "prod_003", Position: 3, Name: "Greek yogurt", Category: "dairy", Price: 129.50, DiscountPrice: ptr(116.55), Rating: 4.8, OrdersCount: 987},
		{ID: "prod_004", Position: 4, Name: "Orange juice", Category: "beverages", Price: 120.00, DiscountPrice: ptr(99.99), Rating: 4.3, OrdersCount: 756},
	}
}

// DemoHistory is the history served to every user that has none of its own.
func DemoHistory() []domain.UserHistoryEntry {
	return []domain.UserHistoryEntry{
		{ProductID: "prod_001", Category: "dairy", Rating: 5},
		{ProductID: "prod_003", Category: "beverages", Rating: 4},
	}
}

// SeedDemo inserts the demo promocodes, catalog and history into an SQL
// database. Tables that already hold rows are left alone.
func SeedDemo(ctx context.Context, db *gorm.DB, now time.Time) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if empty, err := isEmpty(tx, &domain.Promocode{}); err != nil {
			return err
		} else if empty {
			store := NewGormPromoStore(tx)
			for _, p := range DemoPromocodes(now) {
				if err := store.Create(ctx, &p); err != nil && !errors.Is(err, ErrDuplicate) {
					return err
				}
			}
		}
		if empty, err := isEmpty(tx, &domain.Product{}); err != nil {
			return err
		} else if empty {
			products := DemoProducts()
			if err := tx.Create(&products).Error; err != nil {
				return err
			}
		}
		if empty, err := isEmpty(tx, &domain.UserHistoryEntry{}); err != nil {
			return err
		} else if empty {
			history := DemoHistory()
			for i := range history {
				history[i].UserID = DemoUserID
			}
			if err := tx.Create(&history).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func isEmpty(tx *gorm.DB, model any) (bool, error) {
	var n int64
	if err := tx.Model(model).Count(&n).Error; err != nil {
		return false, err
	}
	return n == 0, nil
}
