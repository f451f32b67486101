package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	AccessFeedKey          = "registry:access:recent"
	DefaultAccessFeedLimit = 200
)

// AccessEvent is one entry of the access log as shown in the admin panel.
type AccessEvent struct {
	UserID      *int64    `json:"user_id,omitempty"`
	Username    string    `json:"username,omitempty"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}

// AccessFeed mirrors recent access events into a capped Redis list.
// A nil *AccessFeed is valid and does nothing.
type AccessFeed struct {
	redis RedisClientRaw
	limit int64
}

func NewAccessFeed(client RedisClientRaw, limit int) *AccessFeed {
	if limit <= 0 {
		limit = DefaultAccessFeedLimit
	}
	return &AccessFeed{redis: client, limit: int64(limit)}
}

// Push prepends ev and trims the list to the configured length in one transaction.
func (f *AccessFeed) Push(ctx context.Context, ev AccessEvent) error {
	if f == nil || f.redis == nil {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = f.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, AccessFeedKey, data)
		p.LTrim(ctx, AccessFeedKey, 0, f.limit-1)
		return nil
	})
	return err
}

// Recent returns up to n events, newest first. Undecodable entries are skipped.
func (f *AccessFeed) Recent(ctx context.Context, n int) ([]AccessEvent, error) {
	if f == nil || f.redis == nil {
		return []AccessEvent{}, nil
	}
	if n <= 0 || int64(n) > f.limit {
		n = int(f.limit)
	}
	raw, err := f.redis.LRange(ctx, AccessFeedKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]AccessEvent, 0, len(raw))
	for _, s := range raw {
		var ev AccessEvent
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
