package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestAccessFeedPushAndRecent(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	feed := NewAccessFeed(client, 3)

	for i := 1; i <= 5; i++ {
		id := int64(i)
		require.NoError(t, feed.Push(ctx, AccessEvent{
			UserID:      &id,
			Username:    fmt.Sprintf("user%d", i),
			Action:      ActionLogin,
			Description: "signed in",
			At:          time.Unix(int64(i), 0).UTC(),
		}))
	}

	events, err := feed.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "user5", events[0].Username)
	require.Equal(t, "user3", events[2].Username)

	events, err = feed.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, int64(5), *events[0].UserID)
}

func TestAccessFeedSkipsGarbage(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	feed := NewAccessFeed(client, 0)

	require.NoError(t, feed.Push(ctx, AccessEvent{Action: ActionRegister}))
	_, err := mr.Lpush(AccessFeedKey, "{not json")
	require.NoError(t, err)

	events, err := feed.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, ActionRegister, events[0].Action)
	require.False(t, events[0].At.IsZero())
}

func TestAccessFeedNilIsNoop(t *testing.T) {
	var feed *AccessFeed
	require.NoError(t, feed.Push(context.Background(), AccessEvent{Action: ActionLogin}))
	events, err := feed.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestAuthMetrics(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	m := NewAuthMetrics(client)

	require.NoError(t, m.Record(ctx, OutcomeSuccess))
	require.NoError(t, m.Record(ctx, OutcomeInvalid))
	require.NoError(t, m.Record(ctx, OutcomeInvalid))

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), snap[OutcomeSuccess])
	require.Equal(t, int64(2), snap[OutcomeInvalid])
	require.Equal(t, int64(0), snap[OutcomeLocked])
	require.Contains(t, snap, OutcomeUnavailable)

	var nilMetrics *AuthMetrics
	require.NoError(t, nilMetrics.Record(ctx, OutcomeLocked))
	snap, err = nilMetrics.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 4)
}
