package http

import (
	"net/http"
	"slices"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	txs, err := s.ledger.CreateTransaction(r.Context(), req.purchase())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(txs).Write(w)
}

// handleListTransactions serves ?from=&to= date ranges straight from the
// store and ?competency= (default: current month) through the list cache.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	rng, isRange, err := ParseDateRange(query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if isRange {
		txs, err := s.ledger.ListTransactionsBetween(r.Context(), rng.From, rng.To)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		NewJSONResponse().Data(nonNil(txs)).Write(w)
		return
	}

	c, err := ParseCompetencyParamOrNow(query, "competency", s.now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	txs, hit, err := s.listByCompetency(r, c)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := NewJSONResponse().Data(nonNil(txs))
	if s.listCache != nil {
		status := "MISS"
		if hit {
			status = "HIT"
		}
		resp.Header("X-Cache", status)
	}
	resp.Write(w)
}

func (s *Server) listByCompetency(r *http.Request, c core.Competency) ([]core.Transaction, bool, error) {
	load := func() ([]core.Transaction, error) {
		return s.ledger.ListTransactions(r.Context(), c)
	}
	if s.listCache == nil {
		txs, err := load()
		return txs, false, err
	}
	txs, hit, err := cache.GetOrLoad(s.listCache, c, load)
	if err != nil {
		return nil, false, err
	}
	if hit {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Transaction list cache hit",
			log.FieldCompetency, c.String(), "count", len(txs))
	}
	// Callers must not share the cached backing array.
	return slices.Clone(txs), hit, nil
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.ledger.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(tx).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req UpdateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	tx, err := s.ledger.UpdateTransaction(r.Context(), r.PathValue("id"), req.update())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(tx).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// nonNil keeps empty results encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
