package http

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"ledger/internal/core"
)

func TestJSONResponseBuilder(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusCreated).Header("X-Test", "1").Data(map[string]int{"n": 1}).Write(rec)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Test"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())
}

func TestJSONResponseBuilder_NoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Data("ignored").Write(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestJSONResponseBuilder_EncodingFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().Data(math.Inf(1)).Write(rec)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error","kind":"internal_error"}`, rec.Body.String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"month closed", fmt.Errorf("create: %w: 05/2025", core.ErrMonthClosed), http.StatusConflict, KindMonthClosed},
		{"already closed", core.ErrMonthAlreadyClosed, http.StatusConflict, KindMonthClosed},
		{"already generated", fmt.Errorf("update transaction: %w: template t-1, 07/2025", core.ErrDuplicateMaterialization), http.StatusConflict, KindAlreadyGenerated},
		{"installment count", core.ErrInvalidInstallmentCount, http.StatusUnprocessableEntity, KindInvalidInput},
		{"group member edit", core.ErrGroupMemberEdit, http.StatusUnprocessableEntity, KindInvalidInput},
		{"group not found", core.ErrGroupNotFound, http.StatusNotFound, KindNotFound},
		{"template not found", core.ErrTemplateNotFound, http.StatusNotFound, KindNotFound},
		{"inconsistent group", core.ErrInconsistentGroup, http.StatusInternalServerError, KindInconsistentGroup},
		{"unknown", errors.New("database is locked"), http.StatusInternalServerError, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, kind := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestWriteServiceError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	writeServiceError(rec, req, errors.New("open /data/ledger.db: permission denied"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error","kind":"internal_error"}`, rec.Body.String())
}

func TestWriteServiceError_KeepsClientMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/closed-months", nil)
	writeServiceError(rec, req, fmt.Errorf("close month: %w", core.ErrMonthAlreadyClosed))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"close month: competency month already closed","kind":"month_closed"}`, rec.Body.String())
}
