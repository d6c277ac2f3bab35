// Package handlers defines the error codes carried in the `code` field of the
// error envelope. Codes are lowercase snake_case and stable; clients branch
// on them rather than on messages.
//
// Business rejections of promocodes never use these codes. They travel as
// `message` values (not_found, inactive, ...) inside a 200 body.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidPromocode = "invalid_promocode"
	ErrCodeInvalidUserID    = "invalid_user_id"
	ErrCodeInvalidLimit     = "invalid_limit"
)
