package services

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgermate/recon-api/models"
)

// A transaction without direct evidence counts as covered only when its best
// invoice candidate has an attachment and scores at least this much.
const coverageScoreThreshold = 0.65

// Candidate invoices must round to within this many cents of the transaction
// amount. The bucket index prunes everything else before scoring.
const coverageBucketSlackCents = 2

var hundred = decimal.NewFromInt(100)

// CoverageTotals summarize how much of the window is backed by evidence.
type CoverageTotals struct {
	Transactions    int     `json:"transactions"`
	Covered         int     `json:"covered"`
	Uncovered       int     `json:"uncovered"`
	CoveragePercent float64 `json:"coveragePercent"`
}

// UncoveredTransaction reports a gap together with its best (possibly
// absent) candidate.
type UncoveredTransaction struct {
	Transaction   models.Transaction `json:"transaction"`
	BestCandidate *MatchCandidate    `json:"best_candidate,omitempty"`
}

type CoverageReport struct {
	Totals    CoverageTotals         `json:"totals"`
	Uncovered []UncoveredTransaction `json:"uncovered"`
}

// AnalyzeCoverage computes the fraction of transactions backed by attachment
// evidence. Pure; the service loads the window.
func AnalyzeCoverage(txs []models.Transaction, invoices []models.Receipt, tol Tolerances) CoverageReport {
	// Amount-bucket index: invoice amounts rounded to cents, so candidate
	// lookup is a handful of map probes instead of a scan per transaction.
	buckets := make(map[int64][]int, len(invoices))
	for i, inv := range invoices {
		cents := amountCents(inv)
		buckets[cents] = append(buckets[cents], i)
	}

	report := CoverageReport{Uncovered: []UncoveredTransaction{}}
	for _, tx := range txs {
		report.Totals.Transactions++

		if tx.ReceiptID != nil {
			report.Totals.Covered++
			continue
		}

		txCents := tx.Amount.Abs().Round(2).Mul(hundred).IntPart()
		var best *MatchCandidate
		for delta := int64(-coverageBucketSlackCents); delta <= coverageBucketSlackCents; delta++ {
			for _, idx := range buckets[txCents+delta] {
				c := ScoreMatch(tx, invoices[idx], tol)
				if best == nil || betterCandidate(c, *best) {
					copied := c
					best = &copied
				}
			}
		}

		if best != nil && best.Receipt.HasAttachment && best.Score >= coverageScoreThreshold {
			report.Totals.Covered++
			continue
		}
		report.Totals.Uncovered++
		report.Uncovered = append(report.Uncovered, UncoveredTransaction{Transaction: tx, BestCandidate: best})
	}

	if report.Totals.Transactions > 0 {
		pct := float64(report.Totals.Covered) / float64(report.Totals.Transactions) * 100
		report.Totals.CoveragePercent = math.Round(pct*10) / 10
	}
	return report
}

func betterCandidate(a, b MatchCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DayGap != b.DayGap {
		return a.DayGap < b.DayGap
	}
	return a.AmountDelta.LessThan(b.AmountDelta)
}

func amountCents(r models.Receipt) int64 {
	return r.Amount.Abs().Round(2).Mul(hundred).IntPart()
}

// CoverageService loads a time window of transactions and invoice candidates
// and runs the analyzer over them.
type CoverageService struct {
	db *sql.DB
}

func NewCoverageService(db *sql.DB) *CoverageService {
	return &CoverageService{db: db}
}

// Analyze reports coverage for the last `days` days.
func (s *CoverageService) Analyze(ctx context.Context, tenantID string, days int) (CoverageReport, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, external_id, COALESCE(date, '0001-01-01'), amount, direction,
		       description, counterparty, reference, account_name,
		       category, category_confidence, category_source, receipt_id, created_at, updated_at
		FROM transactions
		WHERE tenant_id = $1 AND date >= $2
		ORDER BY date DESC
	`, tenantID, cutoff)
	if err != nil {
		return CoverageReport{}, fmt.Errorf("failed to load transactions: %w", err)
	}
	defer rows.Close()
	txs, err := scanTransactions(rows)
	if err != nil {
		return CoverageReport{}, err
	}

	invoiceCutoff := cutoff.AddDate(0, 0, -DefaultTolerances().MaxDaysWindow)
	invRows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, vendor, amount, COALESCE(date, '0001-01-01'), status,
		       has_attachment, attachment_url, transaction_id, created_at
		FROM receipts
		WHERE tenant_id = $1 AND status <> 'void' AND date >= $2
	`, tenantID, invoiceCutoff)
	if err != nil {
		return CoverageReport{}, fmt.Errorf("failed to load invoices: %w", err)
	}
	defer invRows.Close()
	invoices, err := scanReceipts(invRows)
	if err != nil {
		return CoverageReport{}, err
	}

	return AnalyzeCoverage(txs, invoices, DefaultTolerances()), nil
}
