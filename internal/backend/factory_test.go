package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/config"
	"ledger/internal/core"
	mirrormem "ledger/internal/sheets/memory"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	require.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	require.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:         "sqlite",
		SQLiteDBPath:        "/tmp/ledger.db",
		AMQPURL:             "amqp://localhost/",
		AMQPExchange:        "ledger",
		AMQPQueue:           "ledger_events",
		GoogleSpreadsheetID: "sheet",
		GoogleSheetName:     "Ledger",
	})
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, "ledger_events", cfg.AMQPQueue)
	assert.Equal(t, "sheet", cfg.GoogleSpreadsheetID)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite with path", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown type", Config{Type: "sheets"}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://x/", AMQPExchange: "e"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.config.Validate() != nil)
		})
	}
}

func TestCreateStore(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateStore(ctx, Config{Type: MemoryBackend})
		require.NoError(t, err)
		assert.Nil(t, res.Ping)
		closed, err := res.Store.IsClosed(ctx, core.NewCompetency(2025, 1))
		require.NoError(t, err)
		assert.False(t, closed)
		require.NoError(t, res.Cleanup())
	})

	t.Run("sqlite", func(t *testing.T) {
		res, err := f.CreateStore(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db")})
		require.NoError(t, err)
		require.NotNil(t, res.Ping)
		require.NoError(t, res.Ping(ctx))
		require.NoError(t, res.Cleanup())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := f.CreateStore(ctx, Config{Type: SQLiteBackend})
		require.Error(t, err)
	})
}

func TestCreatePublisher_Disabled(t *testing.T) {
	res, err := NewFactory(nil).CreatePublisher(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = NewFactory(nil).CreateSubscriber(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestCreateMirror_DefaultsToMemory(t *testing.T) {
	m, err := NewFactory(nil).CreateMirror(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	assert.IsType(t, &mirrormem.Mirror{}, m)
}

func TestCreateMirror_GoogleNeedsCredentials(t *testing.T) {
	_, err := NewFactory(nil).CreateMirror(context.Background(), Config{
		Type: MemoryBackend, GoogleSpreadsheetID: "sheet", GoogleSheetName: "Ledger",
	})
	require.Error(t, err)
}
