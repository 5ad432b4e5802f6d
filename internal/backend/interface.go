// Package backend builds the server-side stores the web server runs on:
// the session store and the event publisher.
package backend

import (
	"context"

	"txadmin/internal/amqp"
	"txadmin/internal/session"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds what the factory built. Ping backs the readiness probe.
type Result struct {
	Sessions  session.Store
	Publisher amqp.Publisher
	Ping      func(ctx context.Context) error
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// sqlite specific
	SQLiteDBPath string

	// memory specific
	CleanupInterval int // seconds

	// optional event publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType selects where sessions live.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
