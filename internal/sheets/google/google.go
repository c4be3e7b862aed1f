package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"fintrack/internal/calendar"
	"fintrack/internal/core"
	ports "fintrack/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const valueInputOption = "USER_ENTERED"

// Ensure interface conformance
var (
	_ ports.ReportExporter = (*Client)(nil)
	_ ports.BudgetReader   = (*Client)(nil)
)

var errNotInitialized = errors.New("sheets service not initialized")

type Config struct {
	SpreadsheetID      string
	ForecastSheet      string
	SubscriptionsSheet string
	BudgetsSheet       string
	ServiceAccountFile string
	ServiceAccountJSON string
}

type Client struct {
	svc                *gsheet.Service
	spreadsheetID      string
	forecastSheet      string
	subscriptionsSheet string
	budgetsSheet       string
}

// New creates a Sheets client authenticated with a service account. Inline
// JSON credentials take precedence over the file path; when neither is set
// GOOGLE_APPLICATION_CREDENTIALS is used.
func New(ctx context.Context, cfg Config) (*Client, error) {
	creds, err := loadCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions creates a client with explicit API options, used to point
// the client at another endpoint or to supply a custom HTTP client.
func NewWithOptions(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      strings.TrimSpace(cfg.SpreadsheetID),
		forecastSheet:      sheetOrDefault(cfg.ForecastSheet, "Forecast"),
		subscriptionsSheet: sheetOrDefault(cfg.SubscriptionsSheet, "Subscriptions"),
		budgetsSheet:       sheetOrDefault(cfg.BudgetsSheet, "Budgets"),
	}, nil
}

func loadCredentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials", "json_length", len(inline))
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.DebugContext(ctx, "Read service account credentials", "path", file, "size", len(b))
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// WriteForecast replaces the forecast sheet with a summary block, the per
// category table and the alerts.
func (c *Client) WriteForecast(ctx context.Context, p calendar.Period, f core.MonthlyForecast) error {
	if c.svc == nil {
		return errNotInitialized
	}
	return c.replace(ctx, c.forecastSheet, forecastRows(p, f))
}

// WriteSubscriptions replaces the subscriptions sheet.
func (c *Client) WriteSubscriptions(ctx context.Context, asOf time.Time, subs []core.DetectedSubscription) error {
	if c.svc == nil {
		return errNotInitialized
	}
	return c.replace(ctx, c.subscriptionsSheet, subscriptionRows(asOf, subs))
}

// ReadBudgets reads the budgets sheet. The first row must name the ID, Name
// and Budget columns.
func (c *Client) ReadBudgets(ctx context.Context) ([]core.Category, error) {
	if c.svc == nil {
		return nil, errNotInitialized
	}
	rng := fmt.Sprintf("%s!A:C", c.budgetsSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	cats, err := parseBudgets(resp.Values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rng, err)
	}
	return cats, nil
}

func (c *Client) replace(ctx context.Context, sheet string, rows [][]any) error {
	clearRng := fmt.Sprintf("%s!A:Z", sheet)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", clearRng, err)
	}

	rng := fmt.Sprintf("%s!A1", sheet)
	vr := &gsheet.ValueRange{Values: rows}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption(valueInputOption).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", rng, err)
	}
	slog.DebugContext(ctx, "Sheet updated", "sheet", sheet, "rows", len(rows))
	return nil
}

func sheetOrDefault(name, def string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return def
}
