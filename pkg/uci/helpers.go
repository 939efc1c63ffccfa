package uci

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidConfig covers a missing required key or an out-of-range
// value. Callers treat it as fatal at startup (spec.md §7).
var ErrInvalidConfig = errors.New("uci: invalid configuration")

func requireString(s *section, key string) (string, error) {
	v, ok := s.options[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s.%s: required option %q missing", ErrInvalidConfig, s.typ, s.name, key)
	}
	return v, nil
}

func optString(s *section, key, fallback string) string {
	if v, ok := s.options[key]; ok && v != "" {
		return v
	}
	return fallback
}

func requireOneOf(s *section, key string, allowed ...string) (string, error) {
	v, err := requireString(s, key)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s.%s: %s must be one of %v, got %q", ErrInvalidConfig, s.typ, s.name, key, allowed, v)
}

func requireIntMin(s *section, key string, min int) (int, error) {
	v, err := requireString(s, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s.%s: %s must be an integer, got %q", ErrInvalidConfig, s.typ, s.name, key, v)
	}
	if n < min {
		return 0, fmt.Errorf("%w: %s.%s: %s must be >= %d, got %d", ErrInvalidConfig, s.typ, s.name, key, min, n)
	}
	return n, nil
}

func requireIntRange(s *section, key string, min, max int) (int, error) {
	n, err := requireIntMin(s, key, min)
	if err != nil {
		return 0, err
	}
	if n > max {
		return 0, fmt.Errorf("%w: %s.%s: %s must be <= %d, got %d", ErrInvalidConfig, s.typ, s.name, key, max, n)
	}
	return n, nil
}

func requireFloat(s *section, key string) (float64, error) {
	v, err := requireString(s, key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s.%s: %s must be a number, got %q", ErrInvalidConfig, s.typ, s.name, key, v)
	}
	return f, nil
}

func optBool(s *section, key string, fallback bool) bool {
	v, ok := s.options[key]
	if !ok || v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func optInt(s *section, key string, fallback int) int {
	v, ok := s.options[key]
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func optSeconds(s *section, key string, fallback time.Duration) time.Duration {
	v, ok := s.options[key]
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Second
}
