// Package cache holds the Redis client used by the relay and a small
// in-process TTL cache.
package cache

import (
	"errors"
	"fmt"
	"strings"
)

var ErrCacheMiss = errors.New("cache: key not found")

// GenerateKey joins prefix and params with ':'.
func GenerateKey(prefix string, params ...interface{}) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, prefix)
	for _, p := range params {
		parts = append(parts, fmt.Sprint(p))
	}
	return strings.Join(parts, ":")
}
