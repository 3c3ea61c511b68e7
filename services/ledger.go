package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgermate/recon-api/models"
	"github.com/ledgermate/recon-api/utils"
)

// Pagination pacing: a small cooperative delay between pages, exponential
// backoff on rate-limit responses, same page retried rather than skipped.
const (
	defaultPageDelay  = 200 * time.Millisecond
	baseBackoff       = 1 * time.Second
	maxBackoff        = 30 * time.Second
	maxPageRetries    = 5
	defaultLedgerPath = "/v1/transactions"
)

// LedgerTransaction is one record as the accounting platform ships it.
// Loosely typed on the wire; validated and normalized once at this boundary.
type LedgerTransaction struct {
	ExternalID   string `json:"id"`
	Date         string `json:"date"`
	Amount       string `json:"amount"`
	Direction    string `json:"direction"`
	Description  string `json:"description"`
	Counterparty string `json:"counterparty"`
	Reference    string `json:"reference"`
	AccountName  string `json:"account_name"`
}

type LedgerPage struct {
	Transactions []LedgerTransaction `json:"transactions"`
	NextCursor   string              `json:"next_cursor"`
}

// LedgerClient fetches transaction pages from the accounting platform.
// OAuth/token refresh is the collaborator's problem, not ours.
type LedgerClient interface {
	FetchTransactions(ctx context.Context, tenantID, cursor string) (*LedgerPage, error)
}

// RateLimitedError is returned when the platform asks us to slow down.
// The sync loop backs off and retries the same page.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by accounting platform (retry after %s)", e.RetryAfter)
}

// UpstreamError marks a failure of the accounting platform itself, as opposed
// to a local storage failure. Handlers map it to 502.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// HTTPLedgerClient talks to the platform's REST API.
type HTTPLedgerClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPLedgerClient() *HTTPLedgerClient {
	return &HTTPLedgerClient{
		baseURL: os.Getenv("LEDGER_API_URL"),
		token:   os.Getenv("LEDGER_API_TOKEN"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPLedgerClient) FetchTransactions(ctx context.Context, tenantID, cursor string) (*LedgerPage, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("LEDGER_API_URL not set")
	}

	endpoint := c.baseURL + defaultLedgerPath + "?tenant=" + url.QueryEscape(tenantID)
	if cursor != "" {
		endpoint += "&cursor=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := baseBackoff
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, err := strconv.Atoi(v); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ledger platform returned %d: %s", resp.StatusCode, string(body))
	}

	var page LedgerPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse ledger page: %w", err)
	}
	return &page, nil
}

// TransactionUpserter is the slice of TransactionService the sync needs.
type TransactionUpserter interface {
	Upsert(ctx context.Context, tx models.Transaction) (string, bool, error)
	ApplyCategorization(ctx context.Context, tenantID, txID string, c models.Categorization) error
}

// CategorizationResolver runs the cascade for newly ingested rows.
type CategorizationResolver interface {
	Resolve(ctx context.Context, tx models.Transaction, opts ResolveOptions) *models.Categorization
}

type SyncResult struct {
	Pages       int `json:"pages"`
	Fetched     int `json:"fetched"`
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Categorized int `json:"categorized"`
}

// SyncService pulls transactions from the accounting platform page by page,
// upserts them, and categorizes new rows. Not parallelized: one page in
// flight at a time, with a cooperative delay between pages.
type SyncService struct {
	client    LedgerClient
	store     TransactionUpserter
	resolver  CategorizationResolver
	pageDelay time.Duration
	sleep     func(time.Duration)
}

func NewSyncService(client LedgerClient, store TransactionUpserter, resolver CategorizationResolver) *SyncService {
	return &SyncService{
		client:    client,
		store:     store,
		resolver:  resolver,
		pageDelay: defaultPageDelay,
		sleep:     time.Sleep,
	}
}

// Sync runs one full pagination pass for the tenant. Categorization failures
// downgrade to uncategorized; they never abort the ingestion flow.
func (s *SyncService) Sync(ctx context.Context, tenantID string) (*SyncResult, error) {
	result := &SyncResult{}
	cursor := ""

	for {
		page, err := s.fetchWithBackoff(ctx, tenantID, cursor)
		if err != nil {
			return result, &UpstreamError{Err: fmt.Errorf("sync aborted on page %d: %w", result.Pages+1, err)}
		}
		result.Pages++

		for _, raw := range page.Transactions {
			tx, err := normalizeLedgerTransaction(tenantID, raw)
			if err != nil {
				utils.Warnf("[Sync] skipping malformed record %s: %v", raw.ExternalID, err)
				continue
			}
			result.Fetched++

			id, inserted, err := s.store.Upsert(ctx, tx)
			if err != nil {
				return result, err
			}
			if inserted {
				result.Created++
				if c := s.resolver.Resolve(ctx, tx, DefaultResolveOptions()); c != nil {
					if err := s.store.ApplyCategorization(ctx, tenantID, id, *c); err != nil {
						utils.Warnf("[Sync] failed to persist categorization for %s: %v", id, err)
					} else {
						result.Categorized++
					}
				}
			} else {
				result.Updated++
			}
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
		s.sleep(s.pageDelay)
	}

	utils.Infof("[Sync] tenant %s: %d page(s), %d fetched, %d created, %d categorized",
		tenantID, result.Pages, result.Fetched, result.Created, result.Categorized)
	return result, nil
}

// fetchWithBackoff retries the same page on rate-limit responses with
// exponential backoff. Anything else propagates as an upstream failure.
func (s *SyncService) fetchWithBackoff(ctx context.Context, tenantID, cursor string) (*LedgerPage, error) {
	backoff := baseBackoff
	for attempt := 0; ; attempt++ {
		page, err := s.client.FetchTransactions(ctx, tenantID, cursor)
		if err == nil {
			return page, nil
		}

		rateErr, ok := err.(*RateLimitedError)
		if !ok || attempt >= maxPageRetries {
			return nil, err
		}

		wait := backoff
		if rateErr.RetryAfter > wait {
			wait = rateErr.RetryAfter
		}
		utils.Warnf("[Sync] rate limited, retrying same page in %s (attempt %d)", wait, attempt+1)
		s.sleep(wait)

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// normalizeLedgerTransaction validates a wire record once, at the boundary.
func normalizeLedgerTransaction(tenantID string, raw LedgerTransaction) (models.Transaction, error) {
	if raw.ExternalID == "" {
		return models.Transaction{}, fmt.Errorf("missing external id")
	}

	amount, err := decimal.NewFromString(raw.Amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("bad amount %q: %w", raw.Amount, err)
	}

	var date time.Time
	if raw.Date != "" {
		date, err = time.Parse("2006-01-02", raw.Date)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("bad date %q: %w", raw.Date, err)
		}
	}

	direction := raw.Direction
	if direction != models.DirectionSpent && direction != models.DirectionReceived {
		direction = models.DirectionSpent
		if amount.IsPositive() {
			direction = models.DirectionReceived
		}
	}

	return models.Transaction{
		TenantID:     tenantID,
		ExternalID:   raw.ExternalID,
		Date:         date,
		Amount:       amount,
		Direction:    direction,
		Description:  raw.Description,
		Counterparty: raw.Counterparty,
		Reference:    raw.Reference,
		AccountName:  raw.AccountName,
	}, nil
}
