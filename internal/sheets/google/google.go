// Package google mirrors the ledger into a Google Sheets tab.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"ledger/internal/core"
	ports "ledger/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Ledger"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Ensure interface conformance
var (
	_ ports.LedgerMirror = (*Client)(nil)
	_ ports.MirrorReader = (*Client)(nil)
)

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = defaultSheetName
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

// Credentials locate a service account key: inline JSON wins over a file path.
type Credentials struct {
	JSON string
	File string
}

func (c Credentials) load() ([]byte, error) {
	if inline := strings.TrimSpace(c.JSON); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(c.File)
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// NewWithCredentials creates a Sheets client for one spreadsheet tab.
func NewWithCredentials(ctx context.Context, creds Credentials, spreadsheetID, sheetName string, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	credentialsJSON, err := creds.load()
	if err != nil {
		return nil, err
	}
	svc, err := newSheetsService(ctx, credentialsJSON, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, strings.TrimSpace(spreadsheetID), sheetName), nil
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Ledger")
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	return NewWithCredentials(ctx, credentialsFromEnv(), spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME"))
}

func credentialsFromEnv() Credentials {
	file := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")
	if strings.TrimSpace(file) == "" {
		file = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	return Credentials{JSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"), File: file}
}

func serviceAccountCredentials() ([]byte, error) {
	return credentialsFromEnv().load()
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, credentialsJSON []byte, opts ...goption.ClientOption) (*gsheet.Service, error) {
	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	opts = append([]goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, opts...)
	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) fullRange() string { return fmt.Sprintf("%s!A:K", c.sheetName) }

// rows returns every cell of the sheet as trimmed strings.
func (c *Client) rows(ctx context.Context) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := c.fullRange()
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = toStrings(row)
	}
	return out, nil
}

// ReplaceCompetency rewrites the sheet with the rows of c replaced by txs.
// The whole tab is rewritten; the header is always the first row.
func (c *Client) ReplaceCompetency(ctx context.Context, comp core.Competency, txs []core.Transaction) error {
	existing, err := c.rows(ctx)
	if err != nil {
		return err
	}
	merged := ports.MergeRows(existing, comp, txs)

	values := make([][]any, 0, len(merged)+1)
	values = append(values, toAny(ports.Header))
	for _, r := range merged {
		values = append(values, toAny(r))
	}

	rng := c.fullRange()
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	target := fmt.Sprintf("%s!A1", c.sheetName)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, target, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", target, err)
	}

	slog.InfoContext(ctx, "Mirrored competency to sheet",
		"competency", comp.String(),
		"sheet", c.sheetName,
		"rows", len(txs))
	return nil
}

// ListCompetency returns the mirrored rows of c. Unparseable rows are skipped.
func (c *Client) ListCompetency(ctx context.Context, comp core.Competency) ([]ports.Row, error) {
	all, err := c.rows(ctx)
	if err != nil {
		return nil, err
	}
	var out []ports.Row
	for i, cols := range all {
		if len(cols) == 0 || cols[0] != comp.String() {
			continue
		}
		row, err := ports.ParseRow(cols)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable sheet row", "row", i+1, "error", err)
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
