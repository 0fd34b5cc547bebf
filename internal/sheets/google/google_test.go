package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

// fakeSheets serves the three values endpoints the client uses.
type fakeSheets struct {
	mu      sync.Mutex
	values  [][]any
	clears  int
	updates int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(map[string]any{"range": "Ledger!A1:K", "values": f.values})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":clear"):
		f.clears++
		f.values = nil
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.updates++
		f.values = vr.Values
		w.Write([]byte(`{}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return New(svc, "sheet-id", "")
}

func tx(id string, c core.Competency) core.Transaction {
	return core.Transaction{
		ID:         id,
		Date:       core.NewDate(c.Year, c.Month, 5),
		Competency: c,
		Value:      core.NewMoney(120, 0),
		Details: core.Details{
			Type: core.Expense, PaymentMethod: core.Pix, Category: "Casa", Description: "Internet",
		},
		InstallmentNumber: 1,
		TotalInstallments: 1,
	}
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")
}

func TestServiceAccountCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	path := t.TempDir() + "/sa.json"
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600))
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", path)

	data, err := serviceAccountCredentials()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"service_account"}`, string(data))

	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"inline":true}`)
	data, err = serviceAccountCredentials()
	require.NoError(t, err)
	assert.Equal(t, `{"inline":true}`, string(data))
}

func TestClientWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetName: "Ledger"}
	err := c.ReplaceCompetency(context.Background(), core.NewCompetency(2025, 1), nil)
	assert.EqualError(t, err, "sheets service not initialized")
}

func TestReplaceCompetency(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	jan, feb := core.NewCompetency(2025, 1), core.NewCompetency(2025, 2)

	require.NoError(t, c.ReplaceCompetency(ctx, jan, []core.Transaction{tx("a", jan), tx("b", jan)}))
	require.NoError(t, c.ReplaceCompetency(ctx, feb, []core.Transaction{tx("c", feb)}))
	require.NoError(t, c.ReplaceCompetency(ctx, jan, []core.Transaction{tx("d", jan)}))

	assert.Equal(t, 3, fake.updates)
	assert.Equal(t, 3, fake.clears)
	require.Len(t, fake.values, 3)
	assert.Equal(t, "Competency", fake.values[0][0])

	rows, err := c.ListCompetency(ctx, jan)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ports.RowOf(tx("d", jan)), rows[0])

	rows, err = c.ListCompetency(ctx, feb)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c", rows[0].TransactionID)
}

func TestListCompetencySkipsBrokenRows(t *testing.T) {
	fake := &fakeSheets{values: [][]any{
		{"Competency", "Date"},
		{"03/2025", "not a date", "x", "y", "1"},
		{"03/2025", "2025-03-02", "Feira", "Cibo", "45.90", "expense", "cash"},
	}}
	c := newTestClient(t, fake)

	rows, err := c.ListCompetency(context.Background(), core.NewCompetency(2025, 3))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Feira", rows[0].Description)
	assert.Equal(t, int64(4590), rows[0].Value.Cents)
}

func TestNewWithCredentials_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewWithCredentials(ctx, Credentials{JSON: `{}`}, " ", "Ledger")
	assert.EqualError(t, err, "missing spreadsheet id")

	_, err = NewWithCredentials(ctx, Credentials{}, "sheet-id", "Ledger")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")

	_, err = NewWithCredentials(ctx, Credentials{File: t.TempDir() + "/absent.json"}, "sheet-id", "Ledger")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}
