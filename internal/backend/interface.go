// Package backend builds the ledger store, the event publisher and the
// spreadsheet mirror from configuration.
package backend

import (
	"context"

	"ledger/internal/ledger"
	"ledger/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// StoreResult contains the store and the function that releases it.
type StoreResult struct {
	Store ledger.Store
	// Ping checks the store is reachable; nil means always ready.
	Ping    func(context.Context) error
	Cleanup CleanupFunc
}

// Factory creates the configured ledger dependencies.
type Factory interface {
	CreateStore(ctx context.Context, config Config) (*StoreResult, error)
	// CreatePublisher returns the AMQP publisher, or nil when AMQP is disabled.
	CreatePublisher(ctx context.Context, config Config) (*PublisherResult, error)
	// CreateSubscriber returns a listener that sees every ledger event without
	// competing with the work queue, or nil when AMQP is disabled.
	CreateSubscriber(ctx context.Context, config Config) (*PublisherResult, error)
	CreateMirror(ctx context.Context, config Config) (sheets.LedgerMirror, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
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
