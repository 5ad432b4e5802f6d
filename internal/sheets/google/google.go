// Package google appends transaction audit rows to a Google Sheets
// spreadsheet, one sheet per year ("2024 Audit").
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"txadmin/internal/core"
	"txadmin/internal/log"
	ports "txadmin/internal/sheets"
)

const (
	auditColumns     = "A:K"
	valueInputOption = "USER_ENTERED"
	insertDataOption = "INSERT_ROWS"
)

type Config struct {
	SpreadsheetID      string
	AuditSheetName     string
	ServiceAccountJSON string
	ServiceAccountFile string

	// OAuth user credentials, used when no service account is set. The
	// token comes from cmd/txadmin-sheets-auth.
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year; the year of each row is prefixed.
	auditBase string
	logger    *log.Logger

	mu         sync.Mutex
	headerDone map[string]bool
}

// Ensure interface conformance
var (
	_ ports.AuditWriter = (*Client)(nil)
	_ ports.AuditReader = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account or an
// OAuth user token.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg, logger), nil
}

// NewWithService wraps an already configured service.
func NewWithService(svc *gsheet.Service, cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	base := strings.TrimSpace(cfg.AuditSheetName)
	if base == "" {
		base = "Audit"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		auditBase:     base,
		logger:        logger.WithComponent(log.ComponentSheets),
		headerDone:    make(map[string]bool),
	}
}

// newSheetsService authenticates with the service account when one is
// configured and with the stored OAuth user token otherwise.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsJSON, err := readSecret(cfg.ServiceAccountJSON, cfg.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	if credentialsJSON != nil {
		service, err := gsheet.NewService(ctx,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return service, nil
	}

	if cfg.OAuthClientJSON == "" && cfg.OAuthClientFile == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
	oauthCfg, err := OAuthConfig(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, err
	}
	tokenJSON, err := readSecret(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token file: %w", err)
	}
	if tokenJSON == nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(oauthCfg.Client(ctx, &tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// OAuthConfig reads an OAuth client definition, inline or from a file,
// scoped to spreadsheets.
func OAuthConfig(clientJSON, clientFile string) (*oauth2.Config, error) {
	b, err := readSecret(clientJSON, clientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	if b == nil {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	cfg, err := googleoauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// readSecret returns inline when set, the file contents when a path is
// set, and nil when neither is.
func readSecret(inline, file string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case strings.TrimSpace(file) != "":
		return os.ReadFile(file)
	}
	return nil, nil
}

// AppendAuditRows writes rows to the sheet of the first row's year.
func (c *Client) AppendAuditRows(ctx context.Context, rows []ports.AuditRow) (string, error) {
	if len(rows) == 0 {
		return "", errors.New("no audit rows to append")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	ts := rows[0].Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	sheet := yearPrefixedName(c.auditBase, ts.Year())

	if err := c.ensureHeader(ctx, sheet); err != nil {
		return "", err
	}

	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		values = append(values, rowValues(r))
	}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, a1(sheet, auditColumns), &gsheet.ValueRange{Values: values}).
		ValueInputOption(valueInputOption).
		InsertDataOption(insertDataOption).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	updated := ""
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Audit rows appended",
		log.FieldSheetsRange, updated,
		"rows", len(rows))
	return updated, nil
}

// ensureHeader writes the header row into an empty sheet once per process.
func (c *Client) ensureHeader(ctx context.Context, sheet string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headerDone[sheet] {
		return nil
	}

	rng := a1(sheet, "A1:K1")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header %s: %w", rng, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		header := make([]any, len(ports.AuditHeader))
		for i, h := range ports.AuditHeader {
			header[i] = h
		}
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write header %s: %w", rng, err)
		}
		c.logger.InfoContext(ctx, "Audit sheet header written", log.FieldSheetsRange, rng)
	}
	c.headerDone[sheet] = true
	return nil
}

// ListAuditRows reads every row of the given year's audit sheet.
func (c *Client) ListAuditRows(ctx context.Context, year int) ([]ports.AuditRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := a1(yearPrefixedName(c.auditBase, year), "A2:K")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([]ports.AuditRow, 0, len(resp.Values))
	for _, raw := range resp.Values {
		if r, ok := parseRow(toStrings(raw)); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func rowValues(r ports.AuditRow) []any {
	return []any{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.Action,
		r.TransactionID,
		core.SanitizeCell(r.Code),
		r.DatePaid,
		r.RateEuro,
		core.SanitizeCell(r.Category),
		core.SanitizeCell(r.Name),
		r.ValueIDR,
		core.SanitizeCell(r.Actor),
		r.DetailID,
	}
}

func parseRow(cols []string) (ports.AuditRow, bool) {
	if len(cols) < 3 || cols[1] == "" {
		return ports.AuditRow{}, false
	}
	ts, err := time.Parse(time.RFC3339, cols[0])
	if err != nil {
		return ports.AuditRow{}, false
	}
	return ports.AuditRow{
		Timestamp:     ts,
		Action:        cols[1],
		TransactionID: safeGet(cols, 2),
		Code:          safeGet(cols, 3),
		DatePaid:      safeGet(cols, 4),
		RateEuro:      safeGet(cols, 5),
		Category:      safeGet(cols, 6),
		Name:          safeGet(cols, 7),
		ValueIDR:      safeGet(cols, 8),
		Actor:         safeGet(cols, 9),
		DetailID:      safeGet(cols, 10),
	}, true
}

// a1 quotes the sheet name for A1 notation.
func a1(sheet, cells string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + cells
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
