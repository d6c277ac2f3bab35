// Package services holds the promocode and recommendation engines.
// This file centralizes service-level error values so that callers can check
// them with errors.Is and translate them into transport outcomes.
//
// Business rejections (unknown code, ineligible user, inactive code, unmet
// order requirements, duplicate code) are not errors; they are returned as
// result values.
package services

import "errors"

var (
	// ErrPromocodeNotFound indicates a direct lookup by code found nothing.
	ErrPromocodeNotFound = errors.New("promocode not found")

	// ErrInvalidPromocode is returned by Create for malformed input. It is
	// wrapped with the offending field.
	ErrInvalidPromocode = errors.New("invalid promocode")

	// ErrRecommendationNotFound indicates an update or delete targeted an
	// unknown curated recommendation id.
	ErrRecommendationNotFound = errors.New("recommendation not found")

	// ErrInvalidLimit is returned when a recommendation limit is below 1.
	ErrInvalidLimit = errors.New("limit must be >= 1")
)
