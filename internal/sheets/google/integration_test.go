//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"ledger/internal/core"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_MirrorRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := NewFromEnv(ctx)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	// A far-future month keeps the test away from real data.
	c := core.NewCompetency(2099, 12)
	if err := client.ReplaceCompetency(ctx, c, []core.Transaction{tx("integration-1", c)}); err != nil {
		t.Fatalf("ReplaceCompetency: %v", err)
	}
	rows, err := client.ListCompetency(ctx, c)
	if err != nil {
		t.Fatalf("ListCompetency: %v", err)
	}
	if len(rows) != 1 || rows[0].TransactionID != "integration-1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	if err := client.ReplaceCompetency(ctx, c, nil); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}
