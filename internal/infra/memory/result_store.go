package memory

import (
	"context"
	"sync"
	"time"

	"temple-quiz-service/internal/domain"
)

// ResultStore keeps submitted results in process memory.
type ResultStore struct {
	mu      sync.RWMutex
	results []domain.ResultRecord
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) SaveResult(_ context.Context, record domain.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, record)
	return nil
}

func (s *ResultStore) ListResults(_ context.Context, since time.Time) ([]domain.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ResultRecord, 0, len(s.results))
	for _, r := range s.results {
		if !r.SubmittedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}
