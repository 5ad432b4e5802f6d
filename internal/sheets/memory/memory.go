// Package memory is an in-process audit sheet for tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"txadmin/internal/sheets"
)

var ErrEmptyBatch = errors.New("no audit rows to append")

type Store struct {
	mu   sync.Mutex
	rows []sheets.AuditRow
	// Fail, when set, is returned by the next append and then cleared.
	Fail error
}

func New() *Store { return &Store{} }

var (
	_ sheets.AuditWriter = (*Store)(nil)
	_ sheets.AuditReader = (*Store)(nil)
)

// AppendAuditRows stores the rows and returns a synthetic range.
func (s *Store) AppendAuditRows(_ context.Context, rows []sheets.AuditRow) (string, error) {
	if len(rows) == 0 {
		return "", ErrEmptyBatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		err := s.Fail
		s.Fail = nil
		return "", err
	}
	first := len(s.rows) + 1
	s.rows = append(s.rows, rows...)
	return fmt.Sprintf("mem!A%d:K%d", first, len(s.rows)), nil
}

// ListAuditRows returns the rows whose timestamp falls in year.
func (s *Store) ListAuditRows(_ context.Context, year int) ([]sheets.AuditRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sheets.AuditRow
	for _, r := range s.rows {
		if r.Timestamp.Year() == year {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
