// Package state provides the shared key/value and list store backing the
// automation control plane: scheduler timestamps, execution history, metric
// and log rings, and the mutable policy records.
//
// The primary backend is Redis. When Redis is unreachable at startup the
// store falls back to an in-process implementation with identical semantics.
// The fallback is non-durable and invisible to other replicas, which is
// acceptable only for single-instance deployments.
package state

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("state: key not found")

// Store is the contract every backend implements. Values are opaque strings;
// lists are newest-first (ListPush prepends).
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key.
	Set(ctx context.Context, key, value string) error

	// ListPush prepends value to the list at key.
	ListPush(ctx context.Context, key, value string) error

	// ListRange returns list elements from start through stop inclusive.
	// Negative indices count from the tail, Redis-style.
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ListTrim discards list elements outside [start, stop].
	ListTrim(ctx context.Context, key string, start, stop int64) error

	// TryClaim atomically checks whether the timestamp stored at key is at
	// least interval old (or absent) and, if so, overwrites it with now and
	// returns true. Exactly one concurrent caller wins a given window.
	TryClaim(ctx context.Context, key string, now time.Time, interval time.Duration) (bool, error)

	// Close releases backend resources.
	Close() error
}

// Namespaced key layout. Everything the control plane persists in the store
// lives under the automation: prefix.
const (
	KeyAutomationState = "automation:state"
	KeyConfig          = "automation:config"
	KeyApprovalRules   = "automation:rules:approval"
	KeyPublishingRules = "automation:rules:publishing"
	KeyMetrics         = "automation:metrics"
	KeyLogs            = "automation:logs"

	lastRunPrefix    = "automation:lastrun:"
	executionsPrefix = "automation:executions:"
)

// LastRunKey returns the last-run timestamp key for a stage.
func LastRunKey(job string) string { return lastRunPrefix + job }

// ExecutionsKey returns the execution-history list key for a stage.
func ExecutionsKey(job string) string { return executionsPrefix + job }

// New probes the Redis backend and returns it when reachable, otherwise an
// in-process fallback. The fallback path logs a single warning.
func New(ctx context.Context, redisURL string, logger *slog.Logger) Store {
	if redisURL != "" {
		rs, err := NewRedisStore(ctx, redisURL)
		if err == nil {
			logger.Info("state store: redis", "url", redisURL)
			return rs
		}
		logger.Warn("state store: redis unreachable, falling back to in-process storage; history is non-durable and not shared across replicas", "error", err)
	} else {
		logger.Warn("state store: no redis URL configured, using in-process storage; history is non-durable and not shared across replicas")
	}
	return NewMemoryStore()
}
