package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"dorm-engine/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stepClock 每次调用前进一秒
func stepClock() func() time.Time {
	t := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func seqIDs() func() string {
	i := 0
	return func() string {
		i++
		return fmt.Sprintf("n%d", i)
	}
}

// ledgers 对两种实现运行同一组用例
func ledgers(t *testing.T, opts ...Option) map[string]Ledger {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	base := []Option{WithClock(stepClock()), WithIDGenerator(seqIDs())}
	redisBase := []Option{WithClock(stepClock()), WithIDGenerator(seqIDs())}
	return map[string]Ledger{
		"memory": NewMemoryLedger(append(base, opts...)...),
		"redis":  NewRedisLedger(client, "test:ledger", zap.NewNop(), append(redisBase, opts...)...),
	}
}

func ids(list []*domain.Notification) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}

func TestLedger_AddListMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			n, err := l.Add(ctx, domain.NotificationDraft{Title: "first", Message: "m1"})
			require.NoError(t, err)
			assert.Equal(t, "n1", n.ID)
			assert.False(t, n.Read)
			assert.Equal(t, domain.NotificationInfo, n.Type)

			_, err = l.Add(ctx, domain.NotificationDraft{UserID: "u1", Title: "second", Type: domain.NotificationSuccess})
			require.NoError(t, err)
			_, err = l.Add(ctx, domain.NotificationDraft{UserID: "u2", Title: "third"})
			require.NoError(t, err)

			all, err := l.List(ctx, Query{})
			require.NoError(t, err)
			assert.Equal(t, []string{"n3", "n2", "n1"}, ids(all))

			// u1 看到自己的和广播
			mine, err := l.List(ctx, Query{UserID: "u1"})
			require.NoError(t, err)
			assert.Equal(t, []string{"n2", "n1"}, ids(mine))

			limited, err := l.List(ctx, Query{Limit: 1})
			require.NoError(t, err)
			assert.Equal(t, []string{"n3"}, ids(limited))
		})
	}
}

func TestLedger_MarkRead(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			n, err := l.Add(ctx, domain.NotificationDraft{UserID: "u1", Title: "t"})
			require.NoError(t, err)
			_, err = l.Add(ctx, domain.NotificationDraft{Title: "broadcast"})
			require.NoError(t, err)
			_, err = l.Add(ctx, domain.NotificationDraft{UserID: "u2", Title: "other"})
			require.NoError(t, err)

			require.NoError(t, l.MarkRead(ctx, n.ID))
			require.NoError(t, l.MarkRead(ctx, n.ID))
			got, err := l.Get(ctx, n.ID)
			require.NoError(t, err)
			assert.True(t, got.Read)

			count, err := l.UnreadCount(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			flipped, err := l.MarkAllRead(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 1, flipped)

			count, err = l.UnreadCount(ctx, "u2")
			require.NoError(t, err)
			assert.Equal(t, 1, count, "u2's own notification stays unread")

			err = l.MarkRead(ctx, "missing")
			require.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestLedger_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			for _, d := range []domain.NotificationDraft{
				{UserID: "u1", Title: "a"}, {UserID: "u1", Title: "b"}, {Title: "all"}, {UserID: "u2", Title: "c"},
			} {
				_, err := l.Add(ctx, d)
				require.NoError(t, err)
			}

			require.NoError(t, l.Remove(ctx, "n1"))
			require.ErrorIs(t, l.Remove(ctx, "n1"), domain.ErrNotFound)

			removed, err := l.Clear(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			left, err := l.List(ctx, Query{})
			require.NoError(t, err)
			assert.Equal(t, []string{"n4", "n3"}, ids(left))

			removed, err = l.Clear(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, 2, removed)
			left, err = l.List(ctx, Query{})
			require.NoError(t, err)
			assert.Empty(t, left)
		})
	}
}

func TestLedger_MaxEntriesDropsOldest(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t, WithMaxEntries(2)) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 4; i++ {
				_, err := l.Add(ctx, domain.NotificationDraft{Title: fmt.Sprintf("t%d", i)})
				require.NoError(t, err)
			}
			all, err := l.List(ctx, Query{})
			require.NoError(t, err)
			assert.Equal(t, []string{"n4", "n3"}, ids(all))

			_, err = l.Get(ctx, "n1")
			require.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestRedisLedger_RemoveIsNotUndoneByMarkRead(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	l := NewRedisLedger(client, "test:ledger", zap.NewNop(), WithClock(stepClock()), WithIDGenerator(seqIDs()))

	for _, d := range []domain.NotificationDraft{{UserID: "u1", Title: "a"}, {UserID: "u1", Title: "b"}} {
		_, err := l.Add(ctx, d)
		require.NoError(t, err)
	}

	require.NoError(t, l.Remove(ctx, "n1"))
	assert.Equal(t, []string{"n2"}, mustHKeys(t, mr, "test:ledger:items"))
	members, err := mr.ZMembers("test:ledger:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"n2"}, members)

	require.ErrorIs(t, l.MarkRead(ctx, "n1"), domain.ErrNotFound)
	assert.Equal(t, []string{"n2"}, mustHKeys(t, mr, "test:ledger:items"), "removed entry is not written back")

	flipped, err := l.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)
	assert.Equal(t, []string{"n2"}, mustHKeys(t, mr, "test:ledger:items"))
}

func mustHKeys(t *testing.T, mr *miniredis.Miniredis, key string) []string {
	t.Helper()
	keys, err := mr.HKeys(key)
	require.NoError(t, err)
	return keys
}
