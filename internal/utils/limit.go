// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLimit parses a list-size query value. An empty value yields def; a
// value that is not an integer or lies outside [lo, hi] is an error.
//
// Example:
//
//	n, _ := utils.ParseLimit("", 10, 1, 50)  // 10
//	n, _ = utils.ParseLimit("25", 10, 1, 50) // 25
//	_, err := utils.ParseLimit("51", 10, 1, 50)
func ParseLimit(s string, def, lo, hi int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("limit %q is not an integer", s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("limit must be between %d and %d", lo, hi)
	}
	return n, nil
}
