package ledger

import (
	"context"
	"sync"

	"dorm-engine/internal/domain"
)

// MemoryLedger 进程内 ledger，entries[0] 为最新
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []*domain.Notification
	opts    options
}

func NewMemoryLedger(opts ...Option) *MemoryLedger {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryLedger{opts: o}
}

var _ Ledger = (*MemoryLedger)(nil)

func (l *MemoryLedger) Add(_ context.Context, d domain.NotificationDraft) (*domain.Notification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.opts.build(d)
	l.entries = append([]*domain.Notification{n}, l.entries...)
	if limit := l.opts.maxEntries; limit > 0 && len(l.entries) > limit {
		l.entries = l.entries[:limit]
	}
	cp := *n
	return &cp, nil
}

func (l *MemoryLedger) List(_ context.Context, q Query) ([]*domain.Notification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []*domain.Notification{}
	for _, n := range l.entries {
		if !q.match(n) {
			continue
		}
		cp := *n
		out = append(out, &cp)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (l *MemoryLedger) Get(_ context.Context, id string) (*domain.Notification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.indexOf(id); i >= 0 {
		cp := *l.entries[i]
		return &cp, nil
	}
	return nil, domain.NotFound("notification", id)
}

func (l *MemoryLedger) MarkRead(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexOf(id)
	if i < 0 {
		return domain.NotFound("notification", id)
	}
	l.entries[i].Read = true
	return nil
}

func (l *MemoryLedger) MarkAllRead(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	flipped := 0
	for _, n := range l.entries {
		if !n.Read && (userID == "" || n.VisibleTo(userID)) {
			n.Read = true
			flipped++
		}
	}
	return flipped, nil
}

func (l *MemoryLedger) Remove(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexOf(id)
	if i < 0 {
		return domain.NotFound("notification", id)
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	return nil
}

func (l *MemoryLedger) Clear(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if userID == "" {
		n := len(l.entries)
		l.entries = nil
		return n, nil
	}
	kept := l.entries[:0]
	removed := 0
	for _, n := range l.entries {
		if n.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	l.entries = kept
	return removed, nil
}

func (l *MemoryLedger) UnreadCount(_ context.Context, userID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	q := Query{UserID: userID, UnreadOnly: true}
	count := 0
	for _, n := range l.entries {
		if q.match(n) {
			count++
		}
	}
	return count, nil
}

func (l *MemoryLedger) indexOf(id string) int {
	for i, n := range l.entries {
		if n.ID == id {
			return i
		}
	}
	return -1
}
