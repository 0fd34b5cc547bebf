package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

func TestParseCompetencyParam(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    core.Competency
		wantErr bool
	}{
		{"valid", "competency=06/2025", core.NewCompetency(2025, 6), false},
		{"single digit month", "competency=3/2025", core.NewCompetency(2025, 3), false},
		{"missing", "", core.Competency{}, true},
		{"month 13", "competency=13/2025", core.Competency{}, true},
		{"iso month", "competency=2025-06", core.Competency{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			got, err := ParseCompetencyParam(q, "competency")
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidCompetency)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCompetencyParamOrNow(t *testing.T) {
	now := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	got, err := ParseCompetencyParamOrNow(url.Values{}, "competency", now)
	require.NoError(t, err)
	assert.Equal(t, core.NewCompetency(2025, 12), got)
}

func TestParseDateRange(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		present bool
		wantErr bool
	}{
		{"absent", "", false, false},
		{"both", "from=2025-01-01&to=2025-01-31", true, false},
		{"only from", "from=2025-01-01", true, true},
		{"bad to", "from=2025-01-01&to=31/01/2025", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			rng, present, err := ParseDateRange(q)
			assert.Equal(t, tt.present, present)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidDate)
				return
			}
			require.NoError(t, err)
			if present {
				assert.Equal(t, core.NewDate(2025, 1, 1), rng.From)
				assert.Equal(t, core.NewDate(2025, 1, 31), rng.To)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "Mercado", sanitizeInput("  Mercado \x00"))
	assert.Equal(t, "a\tb\nc", sanitizeInput("a\tb\nc\x07"))
}

func TestCreateTransactionRequest_Purchase(t *testing.T) {
	body := `{"date":"2025-01-10","value":"12,50","type":"EXPENSE","paymentMethod":"Pix","category":" Casa ","description":"Feira\u0001"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var in CreateTransactionRequest
	require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &in))

	p := in.purchase()
	assert.Equal(t, 1, p.Count)
	assert.Equal(t, int64(1250), p.Total.Cents)
	assert.Equal(t, core.Expense, p.Details.Type)
	assert.Equal(t, core.Pix, p.Details.PaymentMethod)
	assert.Equal(t, "Casa", p.Details.Category)
	assert.Equal(t, "Feira", p.Details.Description)
	require.NoError(t, p.Details.Validate())
}

func TestDecodeJSON_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		target error
	}{
		{"syntax", `{"value":`, errBadJSON},
		{"wrong type", `{"installments":"three"}`, errBadJSON},
		{"invalid amount", `{"value":"abc"}`, core.ErrInvalidAmount},
		{"invalid competency", `{"competency":"00/2025"}`, core.ErrInvalidCompetency},
		{"too large", `{"description":"` + strings.Repeat("x", maxBodyBytes) + `"}`, errBodyTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var in CreateTransactionRequest
			err := decodeJSON(httptest.NewRecorder(), req, &in)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}
