package sheets

import (
	"context"

	"ledger/internal/core"
)

// Ports for the spreadsheet mirror of the ledger.
type (
	// LedgerMirror keeps a read-only copy of the ledger, one block of rows per competency.
	LedgerMirror interface {
		// ReplaceCompetency rewrites every row of month c with txs. An empty
		// txs removes the month from the mirror.
		ReplaceCompetency(ctx context.Context, c core.Competency, txs []core.Transaction) error
	}

	MirrorReader interface {
		ListCompetency(ctx context.Context, c core.Competency) ([]Row, error)
	}
)
