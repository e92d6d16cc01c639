// Package memory is a process-local Store used for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"recargas/internal/core"
)

type syncState int

const (
	syncPending syncState = iota
	syncDone
	syncFailed
)

type Store struct {
	mu        sync.Mutex
	nextID    int64
	recharges map[int64]core.Recharge
	syncs     map[int64]syncState
	settings  map[int64]core.ComparisonConfig
	users     map[int64]core.User
	contacts  []core.ContactMessage
}

func New() *Store {
	return &Store{
		recharges: make(map[int64]core.Recharge),
		syncs:     make(map[int64]syncState),
		settings:  make(map[int64]core.ComparisonConfig),
		users:     make(map[int64]core.User),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateRecharge(_ context.Context, r core.Recharge) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	s.recharges[r.ID] = r
	s.syncs[r.ID] = syncPending
	return r.ID, nil
}

func (s *Store) GetRecharge(_ context.Context, userID, id int64) (core.Recharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recharges[id]
	if !ok || r.UserID != userID {
		return core.Recharge{}, core.ErrNotFound
	}
	return r, nil
}

func (s *Store) UpdateRecharge(_ context.Context, r core.Recharge) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recharges[r.ID]
	if !ok || cur.UserID != r.UserID {
		return core.ErrNotFound
	}
	s.recharges[r.ID] = r
	s.syncs[r.ID] = syncPending
	return nil
}

func (s *Store) DeleteRecharge(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recharges[id]
	if !ok || r.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.recharges, id)
	delete(s.syncs, id)
	return nil
}

func (s *Store) DeleteAllRecharges(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.recharges {
		if r.UserID == userID {
			delete(s.recharges, id)
			delete(s.syncs, id)
			n++
		}
	}
	return n, nil
}

// matching returns the user's recharges passing f, oldest first.
func (s *Store) matching(userID int64, f core.RechargeFilter) []core.Recharge {
	var out []core.Recharge
	for _, r := range s.recharges {
		if r.UserID == userID && f.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

func (s *Store) ListRecharges(_ context.Context, userID int64, f core.RechargeFilter, limit, offset int) ([]core.Recharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asc := s.matching(userID, f)
	out := make([]core.Recharge, 0, len(asc))
	for i := len(asc) - 1; i >= 0; i-- {
		out = append(out, asc[i])
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountRecharges(_ context.Context, userID int64, f core.RechargeFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matching(userID, f)), nil
}

func (s *Store) History(_ context.Context, userID int64) ([]core.Recharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matching(userID, core.RechargeFilter{}), nil
}

func (s *Store) GetSettings(_ context.Context, userID int64) (*core.ComparisonConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.settings[userID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (s *Store) SaveSettings(_ context.Context, cfg core.ComparisonConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[cfg.UserID] = cfg
	return nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) (int64, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return 0, core.ErrDuplicate
		}
	}
	u.ID = s.id()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	return u.ID, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (s *Store) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.LastLogin = at
	s.users[id] = u
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]core.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[int64]int)
	for _, r := range s.recharges {
		counts[r.UserID]++
	}
	out := make([]core.UserSummary, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, core.UserSummary{User: u, Recharges: counts[u.ID]})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out, nil
}

func (s *Store) SaveContact(_ context.Context, m core.ContactMessage) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id()
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = core.ContactStatusSent
	}
	s.contacts = append(s.contacts, m)
	return m.ID, nil
}

func (s *Store) ListContacts(_ context.Context, limit int) ([]core.ContactMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ContactMessage, 0, len(s.contacts))
	for i := len(s.contacts) - 1; i >= 0; i-- {
		out = append(out, s.contacts[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) PendingSync(_ context.Context, limit int) ([]core.Recharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Recharge
	for id, st := range s.syncs {
		if st == syncPending {
			out = append(out, s.recharges[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkSynced(_ context.Context, id int64) error {
	return s.mark(id, syncDone)
}

func (s *Store) MarkSyncError(_ context.Context, id int64) error {
	return s.mark(id, syncFailed)
}

func (s *Store) mark(id int64, st syncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.syncs[id]; !ok {
		return core.ErrNotFound
	}
	s.syncs[id] = st
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
