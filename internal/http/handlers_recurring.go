package http

import (
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
)

// handleGenerateRecurring materializes due templates into ?competency=.
// A closed target month answers 409 and generates nothing.
func (s *Server) handleGenerateRecurring(w http.ResponseWriter, r *http.Request) {
	c, err := ParseCompetencyParam(r.URL.Query(), "competency")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	result, err := s.ledger.GenerateRecurring(r.Context(), c)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if len(result.Failed) > 0 {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Recurring generation had failures",
			log.FieldCompetency, c.String(), "failed", len(result.Failed))
	}
	result.Generated = nonNil(result.Generated)
	result.Skipped = nonNil(result.Skipped)
	NewJSONResponse().Data(result).Write(w)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.ledger.ListTemplates(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(nonNil(templates)).Write(w)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	rt, err := s.ledger.CreateTemplate(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(rt).Write(w)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	rt, err := s.ledger.GetTemplate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(rt).Write(w)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	rt, err := s.ledger.UpdateTemplate(r.Context(), r.PathValue("id"), req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(rt).Write(w)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTemplate(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

type templateStateResponse struct {
	TemplateID string                 `json:"templateId"`
	Competency core.Competency        `json:"competency"`
	State      services.ScheduleState `json:"state"`
}

func (s *Server) handleTemplateState(w http.ResponseWriter, r *http.Request) {
	c, err := ParseCompetencyParamOrNow(r.URL.Query(), "competency", s.now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	id := r.PathValue("id")
	state, err := s.ledger.TemplateState(r.Context(), id, c)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(templateStateResponse{TemplateID: id, Competency: c, State: state}).Write(w)
}
