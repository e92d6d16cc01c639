package core

import (
	"math"
	"strconv"
	"strings"
)

// ParseDecimal parses a user-typed number accepting a comma as the decimal
// separator. NaN and infinities are rejected.
//
//	ParseDecimal("3,5")   -> 3.5
//	ParseDecimal(" 12.0") -> 12
func ParseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, ErrInvalidNumber
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidNumber
	}
	return v, nil
}

// ParseFlag interprets the yes/no spellings accepted in imports.
func ParseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "sim", "yes", "y":
		return true
	}
	return false
}
