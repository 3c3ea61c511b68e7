package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ledgermate/recon-api/models"
	"github.com/ledgermate/recon-api/utils"
)

type ReceiptService struct {
	db *sql.DB
}

func NewReceiptService(db *sql.DB) *ReceiptService {
	return &ReceiptService{db: db}
}

// List returns recent receipts for the tenant, newest first.
func (s *ReceiptService) List(ctx context.Context, tenantID string, sinceDays int) ([]models.Receipt, error) {
	if sinceDays <= 0 {
		sinceDays = 90
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, vendor, amount, COALESCE(date, '0001-01-01'), status,
		       has_attachment, attachment_url, transaction_id, created_at
		FROM receipts
		WHERE tenant_id = $1 AND date >= $2
		ORDER BY date DESC
	`, tenantID, time.Now().AddDate(0, 0, -sinceDays))
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()
	return scanReceipts(rows)
}

// Attach links a transaction to an existing receipt as its proof-of-purchase
// evidence. Both sides of the link are written in one transaction.
func (s *ReceiptService) Attach(ctx context.Context, tenantID, txID, receiptID string) error {
	return utils.WithTransaction(s.db, func(dbtx *sql.Tx) error {
		result, err := dbtx.ExecContext(ctx, `
			UPDATE receipts SET transaction_id = $1
			WHERE id = $2 AND tenant_id = $3
		`, txID, receiptID, tenantID)
		if err != nil {
			return err
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return ErrNotFound
		}

		result, err = dbtx.ExecContext(ctx, `
			UPDATE transactions SET receipt_id = $1, updated_at = NOW()
			WHERE id = $2 AND tenant_id = $3
		`, receiptID, txID, tenantID)
		if err != nil {
			return err
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AttachURL records external evidence for a transaction by creating a
// receipt row around the uploaded attachment and linking it.
func (s *ReceiptService) AttachURL(ctx context.Context, tenantID, txID, url string) (string, error) {
	tx, err := NewTransactionService(s.db).Get(ctx, tenantID, txID)
	if err != nil {
		return "", err
	}

	var receiptID string
	err = utils.WithTransaction(s.db, func(dbtx *sql.Tx) error {
		err := dbtx.QueryRowContext(ctx, `
			INSERT INTO receipts (tenant_id, vendor, amount, date, status, has_attachment, attachment_url, transaction_id)
			VALUES ($1, $2, $3, NULLIF($4, '0001-01-01'::date), 'attached', TRUE, $5, $6)
			RETURNING id
		`, tenantID, tx.Counterparty, tx.Amount.Abs(), tx.Date.Format("2006-01-02"), url, txID).Scan(&receiptID)
		if err != nil {
			return err
		}
		_, err = dbtx.ExecContext(ctx, `
			UPDATE transactions SET receipt_id = $1, updated_at = NOW()
			WHERE id = $2 AND tenant_id = $3
		`, receiptID, txID, tenantID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to attach receipt: %w", err)
	}
	return receiptID, nil
}

// Upsert refreshes a receipt pulled from the accounting platform. Keyed by
// (tenant, vendor, amount, date) since the platform does not expose a stable
// receipt id on every endpoint. IS NOT DISTINCT FROM keeps the dedup working
// for dateless receipts, where a plain equality against NULL never matches.
func (s *ReceiptService) Upsert(ctx context.Context, r models.Receipt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts (tenant_id, vendor, amount, date, status, has_attachment, attachment_url)
		SELECT $1, $2, $3, $4::date, $5, $6, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM receipts
			WHERE tenant_id = $1 AND vendor = $2 AND amount = $3 AND date IS NOT DISTINCT FROM $4::date
		)
	`, r.TenantID, r.Vendor, r.Amount, sqlDate(r.Date), r.Status, r.HasAttachment, r.AttachmentURL)
	if err != nil {
		return fmt.Errorf("failed to upsert receipt: %w", err)
	}
	return nil
}

// sqlDate renders a possibly-unknown date as a query parameter: NULL for the
// zero value instead of a sentinel the predicates would have to special-case.
func sqlDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format("2006-01-02")
}
