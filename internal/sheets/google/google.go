package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"recargas/internal/core"
	ports "recargas/internal/sheets"
)

const defaultSheetName = "Recargas"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// row index cache: recharge id -> 1-based sheet row
	mu                 sync.Mutex
	rowIndex           map[int64]int
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var _ ports.RechargeSheet = (*Client)(nil)

// NewFromEnv creates a Sheets client from the environment.
// Required: GOOGLE_SPREADSHEET_ID. Credentials are an OAuth client plus a
// token saved by "recargasctl sheets auth" (GOOGLE_OAUTH_CLIENT_JSON or
// GOOGLE_OAUTH_CLIENT_FILE, and GOOGLE_OAUTH_TOKEN_FILE), or a service account
// (GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS). GOOGLE_SHEET_NAME defaults to "Recargas".
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := os.Getenv("GOOGLE_SHEET_NAME")

	if tokenFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")); tokenFile != "" {
		cfg, err := OAuthConfigFromEnv()
		if err != nil {
			return nil, err
		}
		tok, err := LoadToken(tokenFile)
		if err != nil {
			return nil, err
		}
		slog.DebugContext(ctx, "Using OAuth user token", "token_file", tokenFile)
		return newWithTokenSource(ctx, spreadsheetID, sheetName, cfg.TokenSource(ctx, tok))
	}

	credentials, err := credentialsFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, spreadsheetID, sheetName, credentials)
}

// New builds a client for one spreadsheet tab with service account credentials.
func New(ctx context.Context, spreadsheetID, sheetName string, credentialsJSON []byte) (*Client, error) {
	creds, err := googleoauth.CredentialsFromJSON(ctx, credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	return newWithTokenSource(ctx, spreadsheetID, sheetName, creds.TokenSource)
}

func newWithTokenSource(ctx context.Context, spreadsheetID, sheetName string, ts oauth2.TokenSource) (*Client, error) {
	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(authorizedHTTPClient(ctx, ts)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newClient(svc, spreadsheetID, sheetName), nil
}

func newClient(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetName:          sheetName,
		cacheValidDuration: 5 * time.Minute,
	}
}

func credentialsFromEnv(ctx context.Context) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// Ping checks that the spreadsheet and its tab are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	_, err := c.sheetID(ctx)
	return err
}

// UpsertRecharge writes r over its existing row or appends a new one.
func (c *Client) UpsertRecharge(ctx context.Context, username string, r core.Recharge) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if r.ID <= 0 {
		return errors.New("recharge without id")
	}

	index, rows, err := c.index(ctx)
	if err != nil {
		return err
	}

	row, ok := index[r.ID]
	if !ok {
		row = rows + 1
		if rows == 0 {
			if err := c.writeHeader(ctx); err != nil {
				return err
			}
			row = 2
		}
	}

	rng := fmt.Sprintf("%s!A%d:%s%d", c.sheetName, row, lastColumn(), row)
	vr := &gsheet.ValueRange{Values: [][]any{ports.Row(username, r)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		c.invalidateRowCache()
		return fmt.Errorf("update %s: %w", rng, err)
	}

	c.mu.Lock()
	if c.rowIndex != nil {
		c.rowIndex[r.ID] = row
		if row > c.cachedRowCount {
			c.cachedRowCount = row
		}
	}
	c.mu.Unlock()
	return nil
}

// DeleteRecharge removes the row of id.
func (c *Client) DeleteRecharge(ctx context.Context, id int64) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	index, _, err := c.index(ctx)
	if err != nil {
		return err
	}
	row, ok := index[id]
	if !ok {
		return nil
	}
	return c.deleteRows(ctx, []int{row})
}

// PurgeUser removes every row belonging to userID.
func (c *Client) PurgeUser(ctx context.Context, userID int64) (int, error) {
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}
	values, err := c.readAll(ctx)
	if err != nil {
		return 0, err
	}
	var rows []int
	for i, v := range values {
		if uid, ok := ports.RowUserID(v); ok && uid == userID {
			rows = append(rows, i+1)
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := c.deleteRows(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (c *Client) writeHeader(ctx context.Context) error {
	header := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	rng := fmt.Sprintf("%s!A1:%s1", c.sheetName, lastColumn())
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// deleteRows removes 1-based rows bottom-up so earlier indexes stay valid.
func (c *Client) deleteRows(ctx context.Context, rows []int) error {
	sheetID, err := c.sheetID(ctx)
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.IntSlice(rows)))

	reqs := make([]*gsheet.Request, 0, len(rows))
	for _, row := range rows {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
				},
			},
		})
	}

	defer c.invalidateRowCache()
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete %d rows from %s: %w", len(rows), c.sheetName, err)
	}
	return nil
}

func (c *Client) sheetID(ctx context.Context) (int64, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheetName {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.sheetName)
}

func (c *Client) readAll(ctx context.Context) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:C", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// index returns the id -> row map and the number of used rows, from cache
// when it is still fresh.
func (c *Client) index(ctx context.Context) (map[int64]int, int, error) {
	c.mu.Lock()
	if c.rowIndex != nil && time.Now().Before(c.cacheExpiresAt) {
		idx, n := c.rowIndex, c.cachedRowCount
		c.mu.Unlock()
		return idx, n, nil
	}
	c.mu.Unlock()

	values, err := c.readAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	idx := buildIndex(values)

	c.mu.Lock()
	c.rowIndex = idx
	c.cachedRowCount = len(values)
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()
	return idx, len(values), nil
}

func (c *Client) invalidateRowCache() {
	c.mu.Lock()
	c.rowIndex = nil
	c.cachedRowCount = 0
	c.cacheExpiresAt = time.Time{}
	c.mu.Unlock()
}

func buildIndex(values [][]any) map[int64]int {
	idx := make(map[int64]int, len(values))
	for i, v := range values {
		if id, ok := ports.RowID(v); ok {
			idx[id] = i + 1
		}
	}
	return idx
}

func lastColumn() string {
	return string(rune('A' + len(ports.Header) - 1))
}
