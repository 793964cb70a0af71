package backend

import (
	"context"

	"dairyflow/internal/billing"
	"dairyflow/internal/records"
)

// Store is the Record Store a backend provides. Every backend also
// supports transactions.
type Store interface {
	records.Store
	records.Transactor
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the optional bill event publisher and
// a cleanup function releasing both.
type BackendResult struct {
	Store Store
	// Events is nil when AMQP is not configured or unreachable.
	Events billing.Publisher
	// Ping reports whether the store is reachable, for readiness probes.
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Bill events, shared by every backend. An empty URL disables them.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Memory backend: directory holding seed_categories.txt
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
