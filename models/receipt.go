package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is a receipt or invoice candidate used as proof-of-purchase
// evidence. Status mirrors what the accounting platform reports
// (e.g. "pending", "paid", "void").
type Receipt struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"-"`
	Vendor        string          `json:"vendor"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Status        string          `json:"status"`
	HasAttachment bool            `json:"has_attachment"`
	AttachmentURL string          `json:"attachment_url,omitempty"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
