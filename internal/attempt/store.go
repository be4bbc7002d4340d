// Package attempt persists finished sessions and applies mentor
// overrides to them. Persistence is a port: the sqlite store backs the
// server, the memory store backs tests.
package attempt

import "github.com/osceprep/patientsim/internal/model"

// Store is the attempt persistence port. Attempts are append-only; the
// only permitted mutation is the mentor review (score merge + comment).
// Get returns (nil, nil) for a missing id.
type Store interface {
	InsertAttempt(a model.ScenarioAttempt) error
	GetAttempt(id string) (*model.ScenarioAttempt, error)
	ListAttempts() ([]model.ScenarioAttempt, error)
	UpdateAttemptReview(id string, score model.PerformanceScore, override map[string]int, comment string) error

	// SetMetadata / GetMetadata hold small key-value server state such
	// as the mentor password hash. GetMetadata returns "" for a
	// missing key.
	SetMetadata(key, value string) error
	GetMetadata(key string) (string, error)

	Close() error
}
