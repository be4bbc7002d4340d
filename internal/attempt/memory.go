package attempt

import (
	"sync"

	"github.com/osceprep/patientsim/internal/model"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu       sync.Mutex
	attempts []model.ScenarioAttempt
	metadata map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{metadata: make(map[string]string)}
}

func (s *MemoryStore) InsertAttempt(a model.ScenarioAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, cloneAttempt(a))
	return nil
}

func (s *MemoryStore) GetAttempt(id string) (*model.ScenarioAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attempts {
		if s.attempts[i].ID == id {
			a := cloneAttempt(s.attempts[i])
			return &a, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListAttempts() ([]model.ScenarioAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ScenarioAttempt, 0, len(s.attempts))
	// Newest first, matching the sqlite store.
	for i := len(s.attempts) - 1; i >= 0; i-- {
		out = append(out, cloneAttempt(s.attempts[i]))
	}
	return out, nil
}

func (s *MemoryStore) UpdateAttemptReview(id string, score model.PerformanceScore, override map[string]int, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attempts {
		if s.attempts[i].ID == id {
			s.attempts[i].FinalScore = score
			s.attempts[i].MentorOverride = cloneOverride(override)
			s.attempts[i].MentorComment = comment
			return nil
		}
	}
	return errNotFound(id)
}

func (s *MemoryStore) SetMetadata(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
	return nil
}

func (s *MemoryStore) GetMetadata(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata[key], nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneAttempt(a model.ScenarioAttempt) model.ScenarioAttempt {
	a.Transcript = append([]model.ChatMessage(nil), a.Transcript...)
	a.MentorOverride = cloneOverride(a.MentorOverride)
	return a
}

func cloneOverride(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
