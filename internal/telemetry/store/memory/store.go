package memory

import (
	"context"
	"sync"

	"docguard/internal/telemetry"
	id "docguard/pkg/domain"
)

const defaultPerSession = 1000

// Store keeps the most recent records per session in memory.
type Store struct {
	mu         sync.RWMutex
	records    map[string][]telemetry.Record
	perSession int
}

func New(perSession int) *Store {
	if perSession <= 0 {
		perSession = defaultPerSession
	}
	return &Store{records: make(map[string][]telemetry.Record), perSession: perSession}
}

func (s *Store) Append(_ context.Context, rec telemetry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.records[rec.SessionID], rec)
	if len(list) > s.perSession {
		list = append([]telemetry.Record(nil), list[len(list)-s.perSession:]...)
	}
	s.records[rec.SessionID] = list
	return nil
}

func (s *Store) ListBySession(_ context.Context, sessionID id.SessionID) ([]telemetry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]telemetry.Record{}, s.records[sessionID.String()]...), nil
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string][]telemetry.Record)
}
