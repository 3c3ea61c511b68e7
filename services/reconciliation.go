package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ledgermate/recon-api/models"
)

// Suggestion thresholds: candidates below minSuggestionScore are dropped,
// at most maxSuggestionCandidates survive per transaction.
const (
	minSuggestionScore      = 0.5
	maxSuggestionCandidates = 3
)

// SuggestionParams scope the receipt-suggestion pass.
type SuggestionParams struct {
	SinceDays    int
	VendorFilter string
	Tolerances   Tolerances
}

func DefaultSuggestionParams() SuggestionParams {
	return SuggestionParams{SinceDays: 90, Tolerances: DefaultTolerances()}
}

// Suggestion is the ranked candidate list for one unmatched transaction.
// Ephemeral: computed on demand, never persisted.
type Suggestion struct {
	Transaction models.Transaction `json:"transaction"`
	Candidates  []MatchCandidate   `json:"candidates"`
	Confidence  float64            `json:"confidence"`
}

// SuggestionReport pairs per-transaction suggestions with a flattened
// unmatched view for simple UIs.
type SuggestionReport struct {
	Suggestions []Suggestion         `json:"suggestions"`
	Unmatched   []models.Transaction `json:"unmatched"`
}

// BuildSuggestions scores every transaction against every receipt and keeps
// the top candidates. Pure; storage scoping happens in the service.
func BuildSuggestions(txs []models.Transaction, receipts []models.Receipt, tol Tolerances) SuggestionReport {
	report := SuggestionReport{Suggestions: []Suggestion{}, Unmatched: []models.Transaction{}}

	for _, tx := range txs {
		var candidates []MatchCandidate
		for _, r := range receipts {
			c := ScoreMatch(tx, r, tol)
			if c.Score >= minSuggestionScore {
				candidates = append(candidates, c)
			}
		}
		if len(candidates) == 0 {
			report.Unmatched = append(report.Unmatched, tx)
			continue
		}
		RankCandidates(candidates)
		if len(candidates) > maxSuggestionCandidates {
			candidates = candidates[:maxSuggestionCandidates]
		}
		report.Suggestions = append(report.Suggestions, Suggestion{
			Transaction: tx,
			Candidates:  candidates,
			Confidence:  candidates[0].Score,
		})
	}
	return report
}

// ReconciliationService loads the unmatched transactions and recent receipts
// for a tenant and runs the matcher over them.
type ReconciliationService struct {
	db *sql.DB
}

func NewReconciliationService(db *sql.DB) *ReconciliationService {
	return &ReconciliationService{db: db}
}

// Suggestions computes receipt suggestions for every spent transaction
// without a receipt reference inside the lookback window.
func (s *ReconciliationService) Suggestions(ctx context.Context, tenantID string, params SuggestionParams) (SuggestionReport, error) {
	if params.SinceDays <= 0 {
		params.SinceDays = 90
	}
	cutoff := time.Now().AddDate(0, 0, -params.SinceDays)

	txs, err := s.loadUnmatchedSpent(ctx, tenantID, cutoff, params.VendorFilter)
	if err != nil {
		return SuggestionReport{}, fmt.Errorf("failed to load transactions: %w", err)
	}

	// Receipts slightly older than the window can still match transactions
	// at its edge, so widen by the date tolerance.
	receiptCutoff := cutoff.AddDate(0, 0, -params.Tolerances.MaxDaysWindow)
	receipts, err := s.loadUnlinkedReceipts(ctx, tenantID, receiptCutoff)
	if err != nil {
		return SuggestionReport{}, fmt.Errorf("failed to load receipts: %w", err)
	}

	return BuildSuggestions(txs, receipts, params.Tolerances), nil
}

func (s *ReconciliationService) loadUnmatchedSpent(ctx context.Context, tenantID string, cutoff time.Time, vendorFilter string) ([]models.Transaction, error) {
	query := `
		SELECT id, tenant_id, external_id, COALESCE(date, '0001-01-01'), amount, direction,
		       description, counterparty, reference, account_name,
		       category, category_confidence, category_source, receipt_id, created_at, updated_at
		FROM transactions
		WHERE tenant_id = $1
		  AND direction = 'spent'
		  AND receipt_id IS NULL
		  AND date >= $2
	`
	args := []any{tenantID, cutoff}
	if vendorFilter != "" {
		query += ` AND (counterparty ILIKE '%' || $3 || '%' OR description ILIKE '%' || $3 || '%')`
		args = append(args, vendorFilter)
	}
	query += ` ORDER BY date DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *ReconciliationService) loadUnlinkedReceipts(ctx context.Context, tenantID string, cutoff time.Time) ([]models.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, vendor, amount, COALESCE(date, '0001-01-01'), status,
		       has_attachment, attachment_url, transaction_id, created_at
		FROM receipts
		WHERE tenant_id = $1
		  AND transaction_id IS NULL
		  AND status <> 'void'
		  AND date >= $2
		ORDER BY date DESC
	`, tenantID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReceipts(rows)
}
