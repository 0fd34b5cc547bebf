package http

import "net/http"

func (s *Server) handleListInstallments(w http.ResponseWriter, r *http.Request) {
	members, err := s.ledger.ListInstallments(r.Context(), r.PathValue("groupId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(members).Write(w)
}

func (s *Server) handleReplanGroup(w http.ResponseWriter, r *http.Request) {
	var req ReplanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if req.Value == nil && req.Date == nil {
		UnprocessableEntityError("nothing to re-plan: give a new value and/or date").Write(w)
		return
	}
	members, err := s.ledger.ReplanGroup(r.Context(), r.PathValue("groupId"), req.Value, req.Date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(members).Write(w)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteGroup(r.Context(), r.PathValue("groupId")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
