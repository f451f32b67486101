package core

import (
	"context"
	"strconv"
)

const AuthMetricsKey = "registry:auth:outcomes"

// Authentication outcomes counted by AuthMetrics.
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid"
	OutcomeLocked      = "locked"
	OutcomeUnavailable = "unavailable"
)

// AuthMetrics keeps per-outcome counters in a Redis hash.
// A nil *AuthMetrics is valid and does nothing.
type AuthMetrics struct {
	redis RedisClientRaw
}

func NewAuthMetrics(redis RedisClientRaw) *AuthMetrics {
	return &AuthMetrics{redis: redis}
}

// Record increments the counter for outcome.
func (m *AuthMetrics) Record(ctx context.Context, outcome string) error {
	if m == nil || m.redis == nil {
		return nil
	}
	return m.redis.HIncrBy(ctx, AuthMetricsKey, outcome, 1).Err()
}

// Snapshot returns all counters; known outcomes are always present.
func (m *AuthMetrics) Snapshot(ctx context.Context) (map[string]int64, error) {
	out := map[string]int64{
		OutcomeSuccess:     0,
		OutcomeInvalid:     0,
		OutcomeLocked:      0,
		OutcomeUnavailable: 0,
	}
	if m == nil || m.redis == nil {
		return out, nil
	}
	raw, err := m.redis.HGetAll(ctx, AuthMetricsKey).Result()
	if err != nil {
		return nil, err
	}
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}
