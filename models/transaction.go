package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction directions as stored in the database.
const (
	DirectionSpent    = "spent"
	DirectionReceived = "received"
)

// Category source tags. Every resolved category carries one so provenance
// stays auditable.
const (
	SourceRule      = "rule"
	SourceHeuristic = "heuristic"
	SourceAI        = "ai"
	SourceManual    = "manual"
)

// Transaction is a bank transaction pulled from the accounting platform.
// Upserted by (tenant_id, external_id); re-ingestion never duplicates.
type Transaction struct {
	ID                 string          `json:"id"`
	TenantID           string          `json:"-"`
	ExternalID         string          `json:"external_id"`
	Date               time.Time       `json:"date"`
	Amount             decimal.Decimal `json:"amount"`
	Direction          string          `json:"direction"`
	Description        string          `json:"description"`
	Counterparty       string          `json:"counterparty"`
	Reference          string          `json:"reference,omitempty"`
	AccountName        string          `json:"account_name,omitempty"`
	Category           *string         `json:"category"`
	CategoryConfidence float64         `json:"category_confidence"`
	CategorySource     string          `json:"category_source,omitempty"`
	ReceiptID          *string         `json:"receipt_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Categorization is the outcome of one resolver cascade.
type Categorization struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Clamp forces the confidence into [0,1]. External suggesters are not
// trusted to respect the range.
func (c *Categorization) Clamp() {
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
}
