package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"dairyflow/internal/log"
	ports "dairyflow/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultRowCacheTTL = 5 * time.Minute

// Options configures the Sheets client.
type Options struct {
	SpreadsheetID string
	// SheetName is the base name without year (e.g. "Bills"); the bill's
	// year is prefixed to pick the tab.
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger

	// Bill-number index per tab, so status updates avoid a full column read.
	mu                 sync.Mutex
	rowIndex           map[string]map[string]int
	cachedRowCount     map[string]int
	cacheExpiresAt     map[string]time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var _ ports.BillWriter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = "Bills"
	}
	if logger == nil {
		logger = log.Discard(log.ComponentSheets)
	}

	svc, err := newSheetsService(ctx, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, spreadsheetID, base, logger), nil
}

func newClient(svc *gsheet.Service, spreadsheetID, base string, logger *log.Logger) *Client {
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetBase:          base,
		logger:             logger,
		rowIndex:           map[string]map[string]int{},
		cachedRowCount:     map[string]int{},
		cacheExpiresAt:     map[string]time.Time{},
		cacheValidDuration: defaultRowCacheTTL,
	}
}

// credentialsJSON resolves service account credentials from inline JSON, a
// file, or GOOGLE_APPLICATION_CREDENTIALS.
func credentialsJSON(opts Options) ([]byte, error) {
	inline := strings.TrimSpace(opts.ServiceAccountJSON)
	file := strings.TrimSpace(opts.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func newSheetsService(ctx context.Context, opts Options, logger *log.Logger) (*gsheet.Service, error) {
	creds, err := credentialsJSON(opts)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(creds),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API
// with connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// sheetName returns the tab holding bills of year.
func (c *Client) sheetName(year int) string {
	return yearPrefixedName(c.sheetBase, year)
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

// lookupRow returns the 1-based row of billNumber in sheet and the row count.
// A fresh cache entry answers without calling the API.
func (c *Client) lookupRow(ctx context.Context, sheet, billNumber string) (row int, count int, err error) {
	c.mu.Lock()
	if time.Now().Before(c.cacheExpiresAt[sheet]) {
		row, count = c.rowIndex[sheet][billNumber], c.cachedRowCount[sheet]
		c.mu.Unlock()
		return row, count, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", rng, err)
	}
	index := make(map[string]int, len(resp.Values))
	for i, cells := range resp.Values {
		if len(cells) == 0 {
			continue
		}
		if v := strings.TrimSpace(fmt.Sprint(cells[0])); v != "" {
			index[v] = i + 1
		}
	}

	c.mu.Lock()
	c.rowIndex[sheet] = index
	c.cachedRowCount[sheet] = len(resp.Values)
	c.cacheExpiresAt[sheet] = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()
	return index[billNumber], len(resp.Values), nil
}

// remember records a written row so the next lookup needs no API call.
func (c *Client) remember(sheet, billNumber string, row int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rowIndex[sheet] == nil {
		c.rowIndex[sheet] = map[string]int{}
	}
	c.rowIndex[sheet][billNumber] = row
	if row > c.cachedRowCount[sheet] {
		c.cachedRowCount[sheet] = row
	}
}

// invalidateRowCache forces the next lookup on sheet to hit the API.
func (c *Client) invalidateRowCache(sheet string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cacheExpiresAt, sheet)
}

func (c *Client) AppendBill(ctx context.Context, r ports.BillRow) (string, error) {
	if strings.TrimSpace(r.BillNumber) == "" {
		return "", errors.New("bill number is required")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheet := c.sheetName(r.Year)

	row, count, err := c.lookupRow(ctx, sheet, r.BillNumber)
	if err != nil {
		return "", fmt.Errorf("failed to get sheet dimensions for %s: %w", sheet, err)
	}
	if row == 0 {
		if count == 0 {
			if err := c.writeRow(ctx, sheet, 1, headerValues()); err != nil {
				return "", err
			}
			count = 1
		}
		row = count + 1
	}

	if err := c.writeRow(ctx, sheet, row, r.Values()); err != nil {
		c.invalidateRowCache(sheet)
		return "", err
	}
	c.remember(sheet, r.BillNumber, row)
	c.logger.DebugContext(ctx, "Bill row written",
		log.FieldBillNumber, r.BillNumber,
		"sheet", sheet,
		"row", row)
	return fmt.Sprintf("%s!A%d:K%d", sheet, row, row), nil
}

func (c *Client) UpdateBillStatus(ctx context.Context, r ports.BillRow) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := c.sheetName(r.Year)
	row, _, err := c.lookupRow(ctx, sheet, r.BillNumber)
	if err != nil {
		return err
	}
	if row == 0 {
		return fmt.Errorf("%s in %s: %w", r.BillNumber, sheet, ports.ErrRowNotFound)
	}

	rng := fmt.Sprintf("%s!I%d:K%d", sheet, row, row)
	vr := &gsheet.ValueRange{Values: [][]any{{r.Status, r.PaymentMode, r.PaymentDate}}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		c.invalidateRowCache(sheet)
		return fmt.Errorf("failed to update %s: %w", rng, err)
	}
	return nil
}

func (c *Client) writeRow(ctx context.Context, sheet string, row int, values []any) error {
	rng := fmt.Sprintf("%s!A%d:K%d", sheet, row, row)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", rng, err)
	}
	return nil
}

func headerValues() []any {
	out := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		out[i] = h
	}
	return out
}
