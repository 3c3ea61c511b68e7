package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermate/recon-api/models"
)

func TestBuildSuggestions_TopThreeCandidates(t *testing.T) {
	tx := spentTx("100.00", date(2026, 3, 10), "Google LLC")
	tx.ID = "tx-1"

	receipts := []models.Receipt{
		receipt("100.00", date(2026, 3, 10), "Google LLC"), // 1.0
		receipt("101.00", date(2026, 3, 13), "Google"),     // 0.97
		receipt("100.00", date(2026, 3, 20), "Google LLC"), // 0.9, ten days out
		receipt("100.00", date(2026, 4, 10), "Google LLC"), // 0.8, beyond window
		receipt("9.99", date(2026, 3, 10), "Spotify"),      // below threshold
	}

	report := BuildSuggestions([]models.Transaction{tx}, receipts, DefaultTolerances())

	require.Len(t, report.Suggestions, 1)
	require.Empty(t, report.Unmatched)

	s := report.Suggestions[0]
	assert.Equal(t, "tx-1", s.Transaction.ID)
	require.Len(t, s.Candidates, 3, "more than three viable candidates are truncated")
	assert.Equal(t, 1.0, s.Candidates[0].Score)
	assert.InDelta(t, 0.97, s.Candidates[1].Score, 0.0001)
	assert.InDelta(t, 0.9, s.Candidates[2].Score, 0.0001)
	assert.Equal(t, 1.0, s.Confidence, "confidence is the best candidate's score")
}

func TestBuildSuggestions_BelowThresholdIsUnmatched(t *testing.T) {
	tx := spentTx("100.00", date(2026, 3, 10), "Google LLC")
	tx.ID = "tx-1"

	report := BuildSuggestions(
		[]models.Transaction{tx},
		[]models.Receipt{receipt("9.99", date(2026, 3, 10), "Spotify")},
		DefaultTolerances(),
	)

	assert.Empty(t, report.Suggestions)
	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, "tx-1", report.Unmatched[0].ID)
}

func TestBuildSuggestions_NegativeSpentAmount(t *testing.T) {
	tx := spentTx("-42.50", date(2026, 7, 1), "Amazon Web Services")
	tx.ID = "tx-1"

	report := BuildSuggestions(
		[]models.Transaction{tx},
		[]models.Receipt{receipt("42.50", date(2026, 7, 1), "Amazon Web Services")},
		DefaultTolerances(),
	)

	require.Len(t, report.Suggestions, 1, "a same-magnitude receipt must match a negative spent amount")
	assert.Empty(t, report.Unmatched)
	assert.Equal(t, 1.0, report.Suggestions[0].Confidence)
}

func TestBuildSuggestions_NoReceipts(t *testing.T) {
	tx := spentTx("42.00", date(2026, 3, 10), "Acme")
	report := BuildSuggestions([]models.Transaction{tx}, nil, DefaultTolerances())

	assert.NotNil(t, report.Suggestions)
	assert.Len(t, report.Unmatched, 1)
}

func TestBuildSuggestions_CandidatesSortedByRank(t *testing.T) {
	tx := spentTx("100.00", date(2026, 3, 10), "Acme")

	// Equal scores resolved by day gap, then amount delta.
	receipts := []models.Receipt{
		receipt("100.00", date(2026, 3, 16), "Acme"),
		receipt("100.50", date(2026, 3, 16), "Acme"),
		receipt("100.00", date(2026, 3, 12), "Acme"),
	}

	report := BuildSuggestions([]models.Transaction{tx}, receipts, DefaultTolerances())
	require.Len(t, report.Suggestions, 1)

	c := report.Suggestions[0].Candidates
	require.Len(t, c, 3)
	assert.Equal(t, 2, c[0].DayGap)
	assert.Equal(t, 6, c[1].DayGap)
	assert.True(t, c[1].AmountDelta.LessThan(c[2].AmountDelta))
}
