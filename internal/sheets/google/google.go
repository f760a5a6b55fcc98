package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"moneybook/internal/core"
	ports "moneybook/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultRowCacheTTL = 2 * time.Minute

// Config selects the spreadsheet and the credentials used to reach it.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Client mirrors transactions into one sheet: a header row followed by
// one row per transaction, keyed by the ID in column A.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	mu                 sync.Mutex
	cachedRows         map[string]int // id -> 1-based row number
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var _ ports.Mirror = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Transactions"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:                svc,
		spreadsheetID:      cfg.SpreadsheetID,
		sheetName:          sheetName,
		cacheValidDuration: defaultRowCacheTTL,
	}, nil
}

// newSheetsService initializes a Sheets service from service account
// credentials, inline JSON first, then a file, then
// GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(inline)
	case file != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// EnsureHeader writes the header row when the sheet is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A1:F1", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	vr := &gsheet.ValueRange{Values: [][]any{headerRow()}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	slog.InfoContext(ctx, "Wrote header row", "sheet", c.sheetName)
	return nil
}

// Upsert overwrites rows whose ID already exists and appends the rest.
func (c *Client) Upsert(ctx context.Context, txs []core.Transaction) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if len(txs) == 0 {
		return nil
	}

	rows, fresh, err := c.rowIndex(ctx)
	if err != nil {
		return err
	}
	updates, appends := planUpsert(rows, txs)

	// another process may have deleted rows since the index was cached
	if len(updates) > 0 && !fresh {
		refs := make([]rowRef, 0, len(updates))
		for _, u := range updates {
			refs = append(refs, rowRef{row: u.row, id: u.tx.ID})
		}
		ok, err := c.rowsHold(ctx, refs)
		if err != nil {
			return err
		}
		if !ok {
			slog.InfoContext(ctx, "Sheet rows moved since last read, re-reading IDs", "sheet", c.sheetName)
			c.invalidateRowCache()
			if rows, _, err = c.rowIndex(ctx); err != nil {
				return err
			}
			updates, appends = planUpsert(rows, txs)
		}
	}

	if len(updates) > 0 {
		data := make([]*gsheet.ValueRange, 0, len(updates))
		for _, u := range updates {
			data = append(data, &gsheet.ValueRange{
				Range:  fmt.Sprintf("%s!A%d:F%d", c.sheetName, u.row, u.row),
				Values: [][]any{toRow(u.tx)},
			})
		}
		req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: data}
		if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			c.invalidateRowCache()
			return fmt.Errorf("update rows in %s: %w", c.sheetName, err)
		}
	}

	if len(appends) > 0 {
		values := make([][]any, 0, len(appends))
		for _, tx := range appends {
			values = append(values, toRow(tx))
		}
		rng := fmt.Sprintf("%s!A:F", c.sheetName)
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		// row numbers shift on append either way
		c.invalidateRowCache()
		if err != nil {
			return fmt.Errorf("append rows to %s: %w", c.sheetName, err)
		}
	}

	slog.DebugContext(ctx, "Upserted transactions to Google Sheets",
		"updated", len(updates), "appended", len(appends), "sheet", c.sheetName)
	return nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rows, fresh, err := c.rowIndex(ctx)
	if err != nil {
		return err
	}
	row, ok := rows[id]
	if ok && !fresh {
		held, err := c.rowsHold(ctx, []rowRef{{row: row, id: id}})
		if err != nil {
			return err
		}
		if !held {
			c.invalidateRowCache()
			if rows, _, err = c.rowIndex(ctx); err != nil {
				return err
			}
			row, ok = rows[id]
		}
	}
	if !ok {
		slog.DebugContext(ctx, "Transaction not in sheet, nothing to delete", "id", id)
		return nil
	}

	sheetID, err := c.sheetID(ctx)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(row - 1),
			EndIndex:   int64(row),
		}},
	}}}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	c.invalidateRowCache()
	if err != nil {
		return fmt.Errorf("delete row %d from %s: %w", row, c.sheetName, err)
	}
	slog.InfoContext(ctx, "Deleted transaction from Google Sheets", "id", id, "row", row)
	return nil
}

// Fetch reads every data row. Rows without an ID or with an unknown type
// are skipped.
func (c *Client) Fetch(ctx context.Context) ([]core.Transaction, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A2:F", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	out := make([]core.Transaction, 0, len(resp.Values))
	for i, row := range resp.Values {
		tx, err := parseRow(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable sheet row", "row", i+2, "error", err)
			continue
		}
		out = append(out, tx)
	}
	slices.SortStableFunc(out, func(a, b core.Transaction) int { return b.Date.Compare(a.Date) })
	return out, nil
}

// rowIndex returns the ID to row map, from cache when still valid. fresh
// reports whether it was just read from the sheet.
func (c *Client) rowIndex(ctx context.Context) (rows map[string]int, fresh bool, err error) {
	c.mu.Lock()
	if c.cachedRows != nil && time.Now().Before(c.cacheExpiresAt) {
		rows := c.cachedRows
		c.mu.Unlock()
		return rows, false, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, false, fmt.Errorf("read ids from %s: %w", c.sheetName, err)
	}
	rows = indexIDs(resp.Values)

	c.mu.Lock()
	c.cachedRows = rows
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()
	return rows, true, nil
}

// rowsHold reads column A of each referenced row and reports whether every
// one still carries the expected ID.
func (c *Client) rowsHold(ctx context.Context, refs []rowRef) (bool, error) {
	ranges := make([]string, 0, len(refs))
	for _, ref := range refs {
		ranges = append(ranges, fmt.Sprintf("%s!A%d", c.sheetName, ref.row))
	}
	resp, err := c.svc.Spreadsheets.Values.BatchGet(c.spreadsheetID).Ranges(ranges...).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("verify ids in %s: %w", c.sheetName, err)
	}
	return rowsMatch(refs, resp.ValueRanges), nil
}

func (c *Client) invalidateRowCache() {
	c.mu.Lock()
	c.cachedRows = nil
	c.cacheExpiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *Client) sheetID(ctx context.Context) (int64, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet properties: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheetName {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.sheetName)
}
