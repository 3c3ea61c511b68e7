package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermate/recon-api/models"
)

func linkedTx(amount string, id string) models.Transaction {
	tx := spentTx(amount, date(2026, 5, 10), "Acme")
	receiptID := "rcpt-" + id
	tx.ID = id
	tx.ReceiptID = &receiptID
	return tx
}

func attachedReceipt(amount string, vendor string) models.Receipt {
	r := receipt(amount, date(2026, 5, 10), vendor)
	r.HasAttachment = true
	return r
}

func TestAnalyzeCoverage_PercentRounding(t *testing.T) {
	// Six linked, two covered via candidates, two uncovered: 8/10 = 80.0%.
	var txs []models.Transaction
	for i := 0; i < 6; i++ {
		txs = append(txs, linkedTx("10.00", fmt.Sprintf("tx-%d", i)))
	}

	viaCandidateA := spentTx("25.00", date(2026, 5, 10), "Google LLC")
	viaCandidateA.ID = "tx-a"
	viaCandidateB := spentTx("60.00", date(2026, 5, 12), "Github Inc")
	viaCandidateB.ID = "tx-b"
	txs = append(txs, viaCandidateA, viaCandidateB)

	gapA := spentTx("99.00", date(2026, 5, 10), "Mystery Vendor")
	gapA.ID = "tx-gap-a"
	gapB := spentTx("77.77", date(2026, 5, 10), "Other Vendor")
	gapB.ID = "tx-gap-b"
	txs = append(txs, gapA, gapB)

	invoices := []models.Receipt{
		attachedReceipt("25.00", "Google LLC"),
		attachedReceipt("60.01", "Github Inc"),
	}

	report := AnalyzeCoverage(txs, invoices, DefaultTolerances())

	assert.Equal(t, 10, report.Totals.Transactions)
	assert.Equal(t, 8, report.Totals.Covered)
	assert.Equal(t, 2, report.Totals.Uncovered)
	assert.Equal(t, 80.0, report.Totals.CoveragePercent)
	assert.Len(t, report.Uncovered, 2)
	assert.Equal(t, report.Totals.Transactions, report.Totals.Covered+report.Totals.Uncovered)
}

func TestAnalyzeCoverage_OneDecimalRounding(t *testing.T) {
	// 1 of 3 covered: 33.333...% rounds to 33.3.
	txs := []models.Transaction{
		linkedTx("10.00", "tx-1"),
		spentTx("50.00", date(2026, 5, 10), "Unknown A"),
		spentTx("60.00", date(2026, 5, 10), "Unknown B"),
	}
	report := AnalyzeCoverage(txs, nil, DefaultTolerances())
	assert.Equal(t, 33.3, report.Totals.CoveragePercent)
}

func TestAnalyzeCoverage_NegativeSpentAmount(t *testing.T) {
	tx := spentTx("-25.00", date(2026, 5, 10), "Google LLC")
	tx.ID = "tx-1"

	report := AnalyzeCoverage([]models.Transaction{tx},
		[]models.Receipt{attachedReceipt("25.00", "Google LLC")}, DefaultTolerances())

	assert.Equal(t, 1, report.Totals.Covered,
		"bucket index and score must agree on the stored sign convention")
	assert.Empty(t, report.Uncovered)
}

func TestAnalyzeCoverage_AttachmentRequired(t *testing.T) {
	tx := spentTx("25.00", date(2026, 5, 10), "Google LLC")
	tx.ID = "tx-1"

	noAttachment := receipt("25.00", date(2026, 5, 10), "Google LLC")
	report := AnalyzeCoverage([]models.Transaction{tx}, []models.Receipt{noAttachment}, DefaultTolerances())

	assert.Equal(t, 0, report.Totals.Covered)
	require.Len(t, report.Uncovered, 1)
	require.NotNil(t, report.Uncovered[0].BestCandidate, "the near-miss is still reported")
	assert.Equal(t, 1.0, report.Uncovered[0].BestCandidate.Score)
}

func TestAnalyzeCoverage_ThresholdInclusive(t *testing.T) {
	tx := spentTx("25.00", date(2026, 5, 10), "Some Vendor")
	tx.ID = "tx-1"

	// Worst bucketed candidate: matching amount, date far out, vendor shares
	// nothing. 0.6 + 0.25*0.2 + 0 = 0.65 exactly, which still meets the
	// threshold.
	boundary := attachedReceipt("25.00", "Unrelated Name")
	boundary.Date = date(2026, 8, 1)
	report := AnalyzeCoverage([]models.Transaction{tx}, []models.Receipt{boundary}, DefaultTolerances())
	assert.Equal(t, 1, report.Totals.Covered)
}

func TestAnalyzeCoverage_BucketPruning(t *testing.T) {
	tx := spentTx("25.00", date(2026, 5, 10), "Acme")
	tx.ID = "tx-1"

	// 25.02 sits at the two-cent bucket edge and is considered; 25.03 is not.
	// Neither carries an attachment, so the transaction stays uncovered and
	// the best candidate reveals which receipts were scored at all.
	inBucket := receipt("25.02", date(2026, 5, 10), "Acme")
	outOfBucket := receipt("25.03", date(2026, 5, 10), "Acme")

	report := AnalyzeCoverage([]models.Transaction{tx}, []models.Receipt{inBucket, outOfBucket}, DefaultTolerances())
	require.Len(t, report.Uncovered, 1)
	best := report.Uncovered[0].BestCandidate
	require.NotNil(t, best)
	assert.True(t, best.Receipt.Amount.Equal(dec("25.02")))
}

func TestAnalyzeCoverage_Empty(t *testing.T) {
	report := AnalyzeCoverage(nil, nil, DefaultTolerances())
	assert.Equal(t, 0, report.Totals.Transactions)
	assert.Equal(t, 0.0, report.Totals.CoveragePercent)
	assert.NotNil(t, report.Uncovered)
}
