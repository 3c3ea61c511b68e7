package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermate/recon-api/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func spentTx(amount string, d time.Time, counterparty string) models.Transaction {
	return models.Transaction{
		Amount:       dec(amount),
		Date:         d,
		Direction:    models.DirectionSpent,
		Counterparty: counterparty,
	}
}

func receipt(amount string, d time.Time, vendor string) models.Receipt {
	return models.Receipt{Amount: dec(amount), Date: d, Vendor: vendor}
}

func TestScoreMatch_FullExample(t *testing.T) {
	// 100.00 vs 101.00 (delta 1.00 == absolute tolerance), 3 days apart,
	// "Google LLC" contains "Google": 0.6*1 + 0.25*1 + 0.15*0.8 = 0.97.
	tx := spentTx("100.00", date(2026, 3, 10), "Google LLC")
	r := receipt("101.00", date(2026, 3, 13), "Google")

	c := ScoreMatch(tx, r, DefaultTolerances())
	assert.InDelta(t, 0.97, c.Score, 0.0001)
	assert.Equal(t, 3, c.DayGap)
}

func TestScoreMatch_NegativeSpentAmount(t *testing.T) {
	// Spent transactions come out of the sync boundary with negative amounts;
	// receipts are positive. The amount term compares magnitudes.
	tx := spentTx("-42.50", date(2026, 7, 1), "Amazon Web Services")
	c := ScoreMatch(tx, receipt("42.50", date(2026, 7, 1), "Amazon Web Services"), DefaultTolerances())
	assert.Equal(t, 1.0, c.Score)
	assert.True(t, c.AmountDelta.IsZero())
}

func TestScoreMatch_AmountStepFunction(t *testing.T) {
	tol := DefaultTolerances()
	d := date(2026, 3, 10)

	tests := []struct {
		name       string
		txAmount   string
		candAmount string
		amountTerm float64
	}{
		{"exact", "50.00", "50.00", 1.0},
		{"inside absolute tolerance", "50.00", "51.00", 1.0},
		{"just outside tolerance", "50.00", "51.51", 0.0},
		{"relative tolerance dominates on large amounts", "1000.00", "1025.00", 1.0},
		{"outside relative tolerance", "1000.00", "1031.00", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := spentTx(tt.txAmount, d, "Acme")
			c := ScoreMatch(tx, receipt(tt.candAmount, d, "Acme"), tol)
			// Date and vendor are identical, so only the amount term moves.
			expected := amountWeight*tt.amountTerm + dateWeight*1.0 + vendorWeight*1.0
			assert.InDelta(t, expected, c.Score, 0.0001)
		})
	}
}

func TestScoreMatch_DateTermPiecewise(t *testing.T) {
	tol := DefaultTolerances()
	tx := spentTx("10.00", date(2026, 6, 15), "Acme")

	tests := []struct {
		name     string
		candDate time.Time
		dateTerm float64
	}{
		{"same day", date(2026, 6, 15), 1.0},
		{"seven days", date(2026, 6, 22), 1.0},
		{"eight days", date(2026, 6, 23), 0.6},
		{"fourteen days", date(2026, 6, 29), 0.6},
		{"beyond window", date(2026, 7, 10), 0.2},
		{"unknown date", time.Time{}, 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ScoreMatch(tx, receipt("10.00", tt.candDate, "Acme"), tol)
			expected := amountWeight*1.0 + dateWeight*tt.dateTerm + vendorWeight*1.0
			assert.InDelta(t, expected, c.Score, 0.0001)
		})
	}
}

func TestScoreMatch_DateMonotonicity(t *testing.T) {
	tol := DefaultTolerances()
	tx := spentTx("10.00", date(2026, 6, 15), "Acme")

	prev := 2.0
	for gap := 0; gap <= 30; gap++ {
		c := ScoreMatch(tx, receipt("10.00", date(2026, 6, 15).AddDate(0, 0, gap), "Acme"), tol)
		assert.LessOrEqual(t, c.Score, prev, "score increased at day gap %d", gap)
		prev = c.Score
	}
}

func TestVendorSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical after normalization", "Google, LLC.", "google llc", 1.0},
		{"containment", "Google LLC", "Google", 0.8},
		{"token overlap two thirds", "Acme Widgets France", "Acme Gadgets France", 2.0 / 3.0},
		{"token overlap capped", "Alpha Beta Gamma Delta", "Alpha Beta Gamma Omega", 0.7},
		{"partial overlap", "Alpha Beta Gamma", "Beta Delta Epsilon", 1.0 / 3.0},
		{"no overlap", "Acme", "Globex", 0.0},
		{"empty name", "", "Google", 0.0},
		{"both empty", "", "", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, vendorSimilarity(tt.a, tt.b), 0.0001)
		})
	}
}

func TestRankCandidates_TieBreaks(t *testing.T) {
	tx := spentTx("100.00", date(2026, 3, 10), "Acme")
	tol := DefaultTolerances()

	sameScoreCloserDate := ScoreMatch(tx, receipt("100.00", date(2026, 3, 12), "Acme"), tol)
	sameScoreFartherDate := ScoreMatch(tx, receipt("100.00", date(2026, 3, 16), "Acme"), tol)
	require.Equal(t, sameScoreCloserDate.Score, sameScoreFartherDate.Score)

	sameDateSmallerDelta := ScoreMatch(tx, receipt("100.50", date(2026, 3, 16), "Acme"), tol)
	require.Equal(t, sameScoreFartherDate.Score, sameDateSmallerDelta.Score)

	candidates := []MatchCandidate{sameScoreFartherDate, sameDateSmallerDelta, sameScoreCloserDate}
	RankCandidates(candidates)

	assert.Equal(t, 2, candidates[0].DayGap, "smaller day gap ranks first on equal score")
	assert.True(t, candidates[1].AmountDelta.LessThan(candidates[2].AmountDelta),
		"smaller amount delta ranks first on equal score and day gap")
}

func TestScoreMatch_RoundedToThreeDecimals(t *testing.T) {
	tx := spentTx("100.00", date(2026, 3, 10), "Alpha Beta Gamma")
	c := ScoreMatch(tx, receipt("100.00", date(2026, 3, 10), "Beta Delta Epsilon"), DefaultTolerances())
	// Vendor overlap 1/3 makes the raw sum 0.9 exactly; check the rounding
	// contract on a messier value too.
	assert.Equal(t, 0.9, c.Score)

	messy := round3(0.6*1 + 0.25*1 + 0.15*(1.0/3.0))
	assert.Equal(t, 0.9, messy)
}
