package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ledgermate/recon-api/models"
	"github.com/ledgermate/recon-api/utils"
)

// MaxListLimit caps server-side listing; requests asking for more get this.
const MaxListLimit = 1000

// ListFilters are the server-side transaction list filters.
type ListFilters struct {
	Category      string
	Uncategorized bool
	SinceDays     int
	From          time.Time
	To            time.Time
	Query         string
	Direction     string
	Limit         int
}

type TransactionService struct {
	db *sql.DB
}

func NewTransactionService(db *sql.DB) *TransactionService {
	return &TransactionService{db: db}
}

const transactionColumns = `id, tenant_id, external_id, COALESCE(date, '0001-01-01'), amount, direction,
	description, counterparty, reference, account_name,
	category, category_confidence, category_source, receipt_id, created_at, updated_at`

// List returns transactions for the tenant with server-side filtering.
func (s *TransactionService) List(ctx context.Context, tenantID string, f ListFilters) ([]models.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE tenant_id = $1"
	args := []any{tenantID}

	addArg := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(clause, len(args))
	}

	if f.Uncategorized {
		query += " AND category IS NULL"
	} else if f.Category != "" {
		addArg(" AND category = $%d", f.Category)
	}
	if f.SinceDays > 0 {
		addArg(" AND date >= $%d", time.Now().AddDate(0, 0, -f.SinceDays))
	}
	if !f.From.IsZero() {
		addArg(" AND date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		addArg(" AND date <= $%d", f.To)
	}
	if f.Direction != "" {
		addArg(" AND direction = $%d", f.Direction)
	}
	if f.Query != "" {
		args = append(args, f.Query)
		query += fmt.Sprintf(" AND (description ILIKE '%%' || $%d || '%%' OR counterparty ILIKE '%%' || $%d || '%%')", len(args), len(args))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	addArg(" ORDER BY date DESC, created_at DESC LIMIT $%d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// SetCategory applies a manual category: confidence 1.0, source manual.
func (s *TransactionService) SetCategory(ctx context.Context, tenantID, txID, category string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category = $1, category_confidence = 1.0, category_source = 'manual', updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3
	`, category, txID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set category: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkSetCategory applies a manual category to many transactions at once.
func (s *TransactionService) BulkSetCategory(ctx context.Context, tenantID string, txIDs []string, category string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category = $1, category_confidence = 1.0, category_source = 'manual', updated_at = NOW()
		WHERE tenant_id = $2 AND id = ANY($3)
	`, category, tenantID, pq.Array(txIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to bulk set category: %w", err)
	}
	return result.RowsAffected()
}

// ApplyCategorization persists a resolver result on one transaction.
func (s *TransactionService) ApplyCategorization(ctx context.Context, tenantID, txID string, c models.Categorization) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category = $1, category_confidence = $2, category_source = $3, updated_at = NOW()
		WHERE id = $4 AND tenant_id = $5
	`, c.Category, c.Confidence, c.Source, txID, tenantID)
	return err
}

// Upsert inserts or refreshes a transaction by (tenant, external id).
// Re-ingestion never creates duplicates; categorization fields are left
// untouched on update. Returns the row id and whether it was inserted.
func (s *TransactionService) Upsert(ctx context.Context, tx models.Transaction) (string, bool, error) {
	var id string
	var inserted bool
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (tenant_id, external_id, date, amount, direction,
			description, counterparty, reference, account_name)
		VALUES ($1, $2, NULLIF($3, '0001-01-01'::date), $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, external_id) DO UPDATE
		SET date = EXCLUDED.date,
		    amount = EXCLUDED.amount,
		    direction = EXCLUDED.direction,
		    description = EXCLUDED.description,
		    counterparty = EXCLUDED.counterparty,
		    reference = EXCLUDED.reference,
		    account_name = EXCLUDED.account_name,
		    updated_at = NOW()
		RETURNING id, (xmax = 0)
	`, tx.TenantID, tx.ExternalID, tx.Date.Format("2006-01-02"), tx.Amount, tx.Direction,
		tx.Description, tx.Counterparty, tx.Reference, tx.AccountName).Scan(&id, &inserted)
	if err != nil {
		return "", false, fmt.Errorf("failed to upsert transaction %s: %w", utils.MaskString(tx.ExternalID), err)
	}
	return id, inserted, nil
}

// Get loads one transaction scoped to the tenant.
func (s *TransactionService) Get(ctx context.Context, tenantID, txID string) (models.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = $1 AND tenant_id = $2", txID, tenantID)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return models.Transaction{}, ErrNotFound
	}
	return tx, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.TenantID, &t.ExternalID, &t.Date, &t.Amount, &t.Direction,
		&t.Description, &t.Counterparty, &t.Reference, &t.AccountName,
		&t.Category, &t.CategoryConfidence, &t.CategorySource, &t.ReceiptID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	txs := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func scanReceipts(rows *sql.Rows) ([]models.Receipt, error) {
	receipts := []models.Receipt{}
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Vendor, &r.Amount, &r.Date, &r.Status,
			&r.HasAttachment, &r.AttachmentURL, &r.TransactionID, &r.CreatedAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
