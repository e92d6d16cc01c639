// Package memory is an in-process RechargeSheet used by tests and by the
// worker when no spreadsheet is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"recargas/internal/core"
	"recargas/internal/sheets"
)

type Sheet struct {
	mu   sync.Mutex
	rows map[int64]Entry
}

// Entry is one mirrored row.
type Entry struct {
	Username string
	Recharge core.Recharge
}

var _ sheets.RechargeSheet = (*Sheet)(nil)

func New() *Sheet {
	return &Sheet{rows: map[int64]Entry{}}
}

func (s *Sheet) UpsertRecharge(_ context.Context, username string, r core.Recharge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[r.ID] = Entry{Username: username, Recharge: r}
	return nil
}

func (s *Sheet) DeleteRecharge(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *Sheet) PurgeUser(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.rows {
		if e.Recharge.UserID == userID {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// Entries returns the rows ordered by recharge id.
func (s *Sheet) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.rows))
	for _, e := range s.rows {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Recharge.ID < out[j].Recharge.ID })
	return out
}
