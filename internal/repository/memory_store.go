package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"dorm-engine/internal/domain"
)

// ErrReadOnly is returned by Put inside View.
var ErrReadOnly = errors.New("repository: write in read-only transaction")

// MemoryStore 内存存储（开发/测试，或 STORE_DRIVER=memory）
// 写事务串行执行；写入先暂存，fn 成功后统一提交
type MemoryStore struct {
	mu sync.RWMutex

	residents map[string]*domain.Resident
	passes    map[string]*domain.GatePass
	leaves    map[string]*domain.Leave
	referrals map[string]*domain.NurseReferral
	visits    map[string]*domain.NurseVisit
	rooms     map[string]*domain.Room
	lockers   map[string]*domain.Locker
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		residents: map[string]*domain.Resident{},
		passes:    map[string]*domain.GatePass{},
		leaves:    map[string]*domain.Leave{},
		referrals: map[string]*domain.NurseReferral{},
		visits:    map[string]*domain.NurseVisit{},
		rooms:     map[string]*domain.Room{},
		lockers:   map[string]*domain.Locker{},
	}
}

// 确保实现了接口
var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.newTx(false)
	if err := fn(tx); err != nil {
		return err
	}
	// fn 可能运行较久，提交前再检查一次
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.newTx(true))
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) newTx(readOnly bool) *memTx {
	return &memTx{
		readOnly:  readOnly,
		residents: newStaged(s.residents, cloneResident),
		passes:    newStaged(s.passes, cloneGatePass),
		leaves:    newStaged(s.leaves, cloneLeave),
		referrals: newStaged(s.referrals, cloneReferral),
		visits:    newStaged(s.visits, cloneVisit),
		rooms:     newStaged(s.rooms, (*domain.Room).Clone),
		lockers:   newStaged(s.lockers, cloneLocker),
	}
}

// staged 单表的写缓冲：读先查 writes，再查 base；读出的都是副本
type staged[T any] struct {
	base   map[string]*T
	writes map[string]*T
	clone  func(*T) *T
}

func newStaged[T any](base map[string]*T, clone func(*T) *T) *staged[T] {
	return &staged[T]{base: base, writes: map[string]*T{}, clone: clone}
}

func (s *staged[T]) get(id string) (*T, bool) {
	if v, ok := s.writes[id]; ok {
		return s.clone(v), true
	}
	if v, ok := s.base[id]; ok {
		return s.clone(v), true
	}
	return nil, false
}

func (s *staged[T]) put(id string, v *T) {
	s.writes[id] = s.clone(v)
}

// list returns copies ordered by id.
func (s *staged[T]) list(match func(*T) bool) []*T {
	ids := make([]string, 0, len(s.base)+len(s.writes))
	for id := range s.base {
		if _, shadowed := s.writes[id]; !shadowed {
			ids = append(ids, id)
		}
	}
	for id := range s.writes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		v, _ := s.get(id)
		if match(v) {
			out = append(out, v)
		}
	}
	return out
}

func (s *staged[T]) commit() {
	for id, v := range s.writes {
		s.base[id] = v
	}
}

type memTx struct {
	readOnly bool

	residents *staged[domain.Resident]
	passes    *staged[domain.GatePass]
	leaves    *staged[domain.Leave]
	referrals *staged[domain.NurseReferral]
	visits    *staged[domain.NurseVisit]
	rooms     *staged[domain.Room]
	lockers   *staged[domain.Locker]
}

func (t *memTx) commit() {
	t.residents.commit()
	t.passes.commit()
	t.leaves.commit()
	t.referrals.commit()
	t.visits.commit()
	t.rooms.commit()
	t.lockers.commit()
}

func (t *memTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *memTx) GetResident(_ context.Context, userID string) (*domain.Resident, error) {
	if r, ok := t.residents.get(userID); ok {
		return r, nil
	}
	return nil, domain.NotFound("resident", userID)
}

func (t *memTx) PutResident(_ context.Context, r *domain.Resident) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	t.residents.put(r.UserID, r)
	return nil
}

func (t *memTx) ListResidents(_ context.Context, f ResidentFilter) ([]*domain.Resident, error) {
	return t.residents.list(f.Match), nil
}

func (t *memTx) GetGatePass(_ context.Context, id string) (*domain.GatePass, error) {
	if p, ok := t.passes.get(id); ok {
		return p, nil
	}
	return nil, domain.NotFound("gate pass", id)
}

func (t *memTx) PutGatePass(_ context.Context, p *domain.GatePass) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	t.passes.put(p.ID, p)
	return nil
}

func (t *memTx) ListGatePasses(_ context.Context, f GatePassFilter) ([]*domain.GatePass, error) {
	return t.passes.list(f.Match), nil
}

func (t *memTx) GetLeave(_ context.Context, id string) (*domain.Leave, error) {
	if l, ok := t.leaves.get(id); ok {
		return l, nil
	}
	return nil, domain.NotFound("leave", id)
}

func (t *memTx) PutLeave(_ context.Context, l *domain.Leave) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}
	t.leaves.put(l.ID, l)
	return nil
}

func (t *memTx) ListLeaves(_ context.Context, f LeaveFilter) ([]*domain.Leave, error) {
	return t.leaves.list(f.Match), nil
}

func (t *memTx) GetReferral(_ context.Context, id string) (*domain.NurseReferral, error) {
	if r, ok := t.referrals.get(id); ok {
		return r, nil
	}
	return nil, domain.NotFound("referral", id)
}

func (t *memTx) PutReferral(_ context.Context, r *domain.NurseReferral) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	t.referrals.put(r.ID, r)
	return nil
}

func (t *memTx) ListReferrals(_ context.Context, f ReferralFilter) ([]*domain.NurseReferral, error) {
	return t.referrals.list(f.Match), nil
}

func (t *memTx) GetVisit(_ context.Context, id string) (*domain.NurseVisit, error) {
	if v, ok := t.visits.get(id); ok {
		return v, nil
	}
	return nil, domain.NotFound("visit", id)
}

func (t *memTx) PutVisit(_ context.Context, v *domain.NurseVisit) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return err
	}
	t.visits.put(v.ID, v)
	return nil
}

func (t *memTx) ListVisits(_ context.Context, f VisitFilter) ([]*domain.NurseVisit, error) {
	return t.visits.list(f.Match), nil
}

func (t *memTx) GetRoom(_ context.Context, id string) (*domain.Room, error) {
	if r, ok := t.rooms.get(id); ok {
		return r, nil
	}
	return nil, domain.NotFound("room", id)
}

func (t *memTx) PutRoom(_ context.Context, r *domain.Room) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	t.rooms.put(r.ID, r)
	return nil
}

func (t *memTx) ListRooms(_ context.Context, f RoomFilter) ([]*domain.Room, error) {
	return t.rooms.list(f.Match), nil
}

func (t *memTx) GetLocker(_ context.Context, id string) (*domain.Locker, error) {
	if l, ok := t.lockers.get(id); ok {
		return l, nil
	}
	return nil, domain.NotFound("locker", id)
}

func (t *memTx) PutLocker(_ context.Context, l *domain.Locker) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}
	t.lockers.put(l.ID, l)
	return nil
}

func (t *memTx) ListLockers(_ context.Context, f LockerFilter) ([]*domain.Locker, error) {
	return t.lockers.list(f.Match), nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneResident(r *domain.Resident) *domain.Resident {
	cp := *r
	return &cp
}

func cloneGatePass(p *domain.GatePass) *domain.GatePass {
	cp := *p
	cp.ApprovedAt = cloneTime(p.ApprovedAt)
	cp.UsedAt = cloneTime(p.UsedAt)
	return &cp
}

func cloneLeave(l *domain.Leave) *domain.Leave {
	cp := *l
	cp.ApprovedAt = cloneTime(l.ApprovedAt)
	return &cp
}

func cloneReferral(r *domain.NurseReferral) *domain.NurseReferral {
	cp := *r
	cp.CompletedAt = cloneTime(r.CompletedAt)
	return &cp
}

func cloneVisit(v *domain.NurseVisit) *domain.NurseVisit {
	cp := *v
	cp.FollowUpDate = cloneTime(v.FollowUpDate)
	return &cp
}

func cloneLocker(l *domain.Locker) *domain.Locker {
	cp := *l
	return &cp
}
