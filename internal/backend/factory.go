package backend

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/sheets"
	gsheet "ledger/internal/sheets/google"
	mirrormem "ledger/internal/sheets/memory"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

// PublisherResult carries the AMQP client, which both publishes and consumes.
type PublisherResult struct {
	Client  *amqp.Client
	Cleanup CleanupFunc
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateStore opens the configured ledger store. SQLite migrations run on open.
func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (*StoreResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &StoreResult{Store: repo, Ping: repo.Ping, Cleanup: repo.Close}, nil

	case MemoryBackend:
		f.logger.WarnContext(ctx, "Initialized memory backend, ledger data is lost on exit")
		store := memory.New()
		return &StoreResult{Store: store, Cleanup: store.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// CreatePublisher connects to the broker when AMQP is configured. It
// returns (nil, nil) when AMQP is disabled.
func (f *DefaultFactory) CreatePublisher(ctx context.Context, config Config) (*PublisherResult, error) {
	if config.AMQPURL == "" {
		f.logger.InfoContext(ctx, "AMQP disabled, ledger events stay in process")
		return nil, nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return &PublisherResult{Client: client, Cleanup: client.Close}, nil
}

// CreateSubscriber connects a broadcast listener on the ledger events. It
// returns (nil, nil) when AMQP is disabled.
func (f *DefaultFactory) CreateSubscriber(ctx context.Context, config Config) (*PublisherResult, error) {
	if config.AMQPURL == "" {
		return nil, nil
	}
	client, err := amqp.NewSubscriber(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AMQP subscriber: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized AMQP subscriber", "exchange", config.AMQPExchange)
	return &PublisherResult{Client: client, Cleanup: client.Close}, nil
}

// CreateMirror returns the Google Sheets mirror when a spreadsheet id is
// configured, and an in-memory mirror otherwise.
func (f *DefaultFactory) CreateMirror(ctx context.Context, config Config) (sheets.LedgerMirror, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.InfoContext(ctx, "No spreadsheet configured, mirroring in memory only")
		return mirrormem.New(), nil
	}
	client, err := gsheet.NewWithCredentials(ctx,
		gsheet.Credentials{JSON: config.GoogleServiceAccountJSON, File: config.GoogleServiceAccountFile},
		config.GoogleSpreadsheetID, config.GoogleSheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized Google Sheets mirror", "sheet", config.GoogleSheetName)
	return client, nil
}
