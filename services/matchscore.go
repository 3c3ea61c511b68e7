package services

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ledgermate/recon-api/models"
)

// Term weights for the match score. Amount dominates: an amount mismatch
// caps the score at 0.40 no matter how close the dates and vendors are.
const (
	amountWeight = 0.60
	dateWeight   = 0.25
	vendorWeight = 0.15
)

// unknownDayGap sorts candidates with an unknown date after any candidate
// with a real day gap.
const unknownDayGap = math.MaxInt32

// Tolerances control the amount and date terms of the match score.
type Tolerances struct {
	// AbsoluteAmount is the flat amount tolerance in currency units.
	AbsoluteAmount decimal.Decimal
	// RelativePct widens the tolerance for large transactions (0.03 = 3%).
	RelativePct float64
	// MaxDaysWindow is the day gap beyond which the date term drops to 0.2.
	MaxDaysWindow int
}

func DefaultTolerances() Tolerances {
	return Tolerances{
		AbsoluteAmount: decimal.NewFromInt(1),
		RelativePct:    0.03,
		MaxDaysWindow:  14,
	}
}

// MatchCandidate is one scored (transaction, receipt) pairing. Ephemeral,
// never persisted.
type MatchCandidate struct {
	Receipt     models.Receipt  `json:"receipt"`
	Score       float64         `json:"score"`
	DayGap      int             `json:"day_gap"`
	AmountDelta decimal.Decimal `json:"amount_delta"`
	Reason      string          `json:"reason"`
}

// ScoreMatch compares one transaction against one receipt/invoice candidate.
// Pure: no storage access, no side effects.
func ScoreMatch(tx models.Transaction, r models.Receipt, tol Tolerances) MatchCandidate {
	var reasons []string

	// Amount term: binary, inside max(absolute, relative) tolerance or not.
	// Magnitudes are compared: spent transactions are stored negative while
	// receipts carry positive amounts.
	delta := tx.Amount.Abs().Sub(r.Amount.Abs()).Abs()
	amountTerm := 0.0
	if delta.LessThanOrEqual(amountTolerance(tx.Amount, tol)) {
		amountTerm = 1.0
		reasons = append(reasons, "amount within tolerance")
	} else {
		reasons = append(reasons, fmt.Sprintf("amount off by %s", delta.StringFixed(2)))
	}

	// Date term: piecewise by day gap.
	dayGap := unknownDayGap
	dateTerm := 0.4
	switch {
	case tx.Date.IsZero() || r.Date.IsZero():
		reasons = append(reasons, "date unknown")
	default:
		dayGap = int(math.Abs(tx.Date.Sub(r.Date).Hours()) / 24)
		switch {
		case dayGap <= 7:
			dateTerm = 1.0
		case dayGap <= tol.MaxDaysWindow:
			dateTerm = 0.6
		default:
			dateTerm = 0.2
		}
		reasons = append(reasons, fmt.Sprintf("%d day(s) apart", dayGap))
	}

	vendorTerm := vendorSimilarity(tx.Counterparty, r.Vendor)
	if vendorTerm >= 0.8 {
		reasons = append(reasons, "vendor match")
	}

	score := amountWeight*amountTerm + dateWeight*dateTerm + vendorWeight*vendorTerm

	return MatchCandidate{
		Receipt:     r,
		Score:       round3(score),
		DayGap:      dayGap,
		AmountDelta: delta,
		Reason:      strings.Join(reasons, ", "),
	}
}

// RankCandidates sorts candidates best-first: higher score, then smaller day
// gap, then smaller absolute amount delta.
func RankCandidates(candidates []MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].DayGap != candidates[j].DayGap {
			return candidates[i].DayGap < candidates[j].DayGap
		}
		return candidates[i].AmountDelta.LessThan(candidates[j].AmountDelta)
	})
}

func amountTolerance(amount decimal.Decimal, tol Tolerances) decimal.Decimal {
	relative := amount.Abs().Mul(decimal.NewFromFloat(tol.RelativePct))
	if relative.GreaterThan(tol.AbsoluteAmount) {
		return relative
	}
	return tol.AbsoluteAmount
}

var nonAlphanumRegex = regexp.MustCompile(`[^a-z0-9 ]+`)
var whitespaceRegex = regexp.MustCompile(`\s+`)

// vendorSimilarity compares two vendor names after normalization.
// Identical 1.0, containment 0.8, otherwise token overlap capped at 0.7.
func vendorSimilarity(a, b string) float64 {
	na := normalizeVendor(a)
	nb := normalizeVendor(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}

	tokensA := strings.Fields(na)
	tokensB := strings.Fields(nb)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}
	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}
	shared := 0
	seen := make(map[string]bool)
	for _, t := range tokensB {
		if setA[t] && !seen[t] {
			shared++
			seen[t] = true
		}
	}
	smaller := len(setA)
	if n := distinctCount(tokensB); n < smaller {
		smaller = n
	}
	overlap := float64(shared) / float64(smaller)
	if overlap > 0.7 {
		overlap = 0.7
	}
	return overlap
}

func distinctCount(tokens []string) int {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return len(set)
}

func normalizeVendor(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonAlphanumRegex.ReplaceAllString(s, " ")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
