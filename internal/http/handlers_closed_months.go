package http

import "net/http"

func (s *Server) handleListClosedMonths(w http.ResponseWriter, r *http.Request) {
	months, err := s.ledger.ListClosedMonths(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(nonNil(months)).Write(w)
}

// handleCloseMonth closes {"month":"MM/YYYY"} and answers with the closed set.
func (s *Server) handleCloseMonth(w http.ResponseWriter, r *http.Request) {
	var req CloseMonthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if err := req.Month.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	months, err := s.ledger.CloseMonth(r.Context(), req.Month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(nonNil(months)).Write(w)
}

func (s *Server) handleReopenMonth(w http.ResponseWriter, r *http.Request) {
	c, err := ParseCompetencyParam(r.URL.Query(), "month")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	months, err := s.ledger.ReopenMonth(r.Context(), c)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(nonNil(months)).Write(w)
}
