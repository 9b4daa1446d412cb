package destination

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/mercsync/internal/config"
	"github.com/rewired-gh/mercsync/internal/logger"
	"github.com/rewired-gh/mercsync/internal/models"
)

// upsertBatchSize is the Airtable per-request record limit.
const upsertBatchSize = 10

// APIError is a non-success Airtable reply.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("airtable %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type airtableBase struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type basesPage struct {
	Bases  []airtableBase `json:"bases"`
	Offset string         `json:"offset"`
}

type tablesPage struct {
	Tables []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"tables"`
}

type airtableRecord struct {
	ID     string     `json:"id,omitempty"`
	Fields models.Row `json:"fields"`
}

type upsertRequest struct {
	PerformUpsert struct {
		FieldsToMergeOn []string `json:"fieldsToMergeOn"`
	} `json:"performUpsert"`
	Records  []airtableRecord `json:"records"`
	Typecast bool             `json:"typecast"`
}

type recordsPage struct {
	Records []airtableRecord `json:"records"`
}

// Airtable is a Store writing to the tables of one Airtable base, resolved
// by name on first use.
type Airtable struct {
	http     *resty.Client
	baseName string

	mu     sync.Mutex
	baseID string
}

// NewAirtable creates an Airtable store from cfg.
func NewAirtable(cfg config.AirtableConfig) *Airtable {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetDisableWarn(true).
		SetRetryCount(3).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(30 * time.Second).
		AddRetryCondition(func(r *resty.Response, _ error) bool {
			return r != nil && r.StatusCode() == 429
		})

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return &Airtable{http: client, baseName: cfg.BaseName}
}

func (a *Airtable) check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{
			StatusCode: resp.StatusCode(),
			Method:     resp.Request.Method,
			Path:       resp.Request.URL,
			Body:       resp.String(),
		}
	}
	return nil
}

// base resolves and caches the base ID.
func (a *Airtable) base(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.baseID != "" {
		return a.baseID, nil
	}

	offset := ""
	for {
		var page basesPage
		req := a.http.R().SetContext(ctx).SetResult(&page)
		if offset != "" {
			req.SetQueryParam("offset", offset)
		}
		if err := a.check(req.Get("/meta/bases")); err != nil {
			return "", fmt.Errorf("failed to list bases: %w", err)
		}
		for _, b := range page.Bases {
			if b.Name == a.baseName {
				a.baseID = b.ID
				logger.Debug("Resolved Airtable base %q to %s", a.baseName, b.ID)
				return b.ID, nil
			}
		}
		if page.Offset == "" {
			return "", fmt.Errorf("airtable base %q not found", a.baseName)
		}
		offset = page.Offset
	}
}

// Upsert writes records in batches, merging on keyField.
func (a *Airtable) Upsert(ctx context.Context, table, keyField string, records []models.Row) error {
	if _, err := checkRecords(table, keyField, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	baseID, err := a.base(ctx)
	if err != nil {
		return err
	}

	for start := 0; start < len(records); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}

		body := upsertRequest{Typecast: true}
		body.PerformUpsert.FieldsToMergeOn = []string{keyField}
		for _, r := range records[start:end] {
			body.Records = append(body.Records, airtableRecord{Fields: r})
		}

		resp, err := a.http.R().
			SetContext(ctx).
			SetPathParams(map[string]string{"base": baseID, "table": table}).
			SetBody(body).
			Patch("/{base}/{table}")
		if err := a.check(resp, err); err != nil {
			return fmt.Errorf("failed to upsert %s records %d-%d: %w", table, start, end-1, err)
		}
	}
	logger.Debug("Upserted %d records into %s", len(records), table)
	return nil
}

// HasSyncRecord looks the turn up in the Sync table.
func (a *Airtable) HasSyncRecord(ctx context.Context, turn int) (bool, error) {
	baseID, err := a.base(ctx)
	if err != nil {
		return false, err
	}
	var page recordsPage
	resp, err := a.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"base": baseID, "table": TableSync}).
		SetQueryParams(map[string]string{
			"filterByFormula": fmt.Sprintf("{turn}=%d", turn),
			"maxRecords":      "1",
		}).
		SetResult(&page).
		Get("/{base}/{table}")
	if err := a.check(resp, err); err != nil {
		return false, fmt.Errorf("failed to query sync log: %w", err)
	}
	return len(page.Records) > 0, nil
}

// RecordSync writes the ledger entry for rec.Turn.
func (a *Airtable) RecordSync(ctx context.Context, rec models.SyncRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid sync record: %w", err)
	}
	return a.Upsert(ctx, TableSync, "turn", []models.Row{rec.Row()})
}

// Migrate creates every Schema table missing from the base.
func (a *Airtable) Migrate(ctx context.Context) error {
	baseID, err := a.base(ctx)
	if err != nil {
		return err
	}

	var page tablesPage
	resp, err := a.http.R().
		SetContext(ctx).
		SetPathParam("base", baseID).
		SetResult(&page).
		Get("/meta/bases/{base}/tables")
	if err := a.check(resp, err); err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}

	existing := make(map[string]bool, len(page.Tables))
	for _, t := range page.Tables {
		existing[t.Name] = true
	}

	for _, t := range Schema {
		if existing[t.Name] {
			logger.Debug("Table %s already exists", t.Name)
			continue
		}
		resp, err := a.http.R().
			SetContext(ctx).
			SetPathParam("base", baseID).
			SetBody(t).
			Post("/meta/bases/{base}/tables")
		if err := a.check(resp, err); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
		logger.Info("Created table %s", t.Name)
	}
	return nil
}

// Close is a no-op.
func (a *Airtable) Close() error {
	return nil
}
