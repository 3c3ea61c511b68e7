package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ledgermate/recon-api/middleware"
	"github.com/ledgermate/recon-api/models"
	"github.com/ledgermate/recon-api/services"
)

type ReconciliationHandler struct {
	Matcher  *services.ReconciliationService
	Coverage *services.CoverageService
	Receipts *services.ReceiptService
}

// GetSuggestions handles GET /receipts/suggestions.
func (h *ReconciliationHandler) GetSuggestions(c *gin.Context) {
	params := services.DefaultSuggestionParams()
	params.VendorFilter = c.Query("vendor")

	if v := c.Query("sinceDays"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sinceDays must be a positive integer"})
			return
		}
		params.SinceDays = days
	}
	if v := c.Query("tolPct"); v != "" {
		pct, err := strconv.ParseFloat(v, 64)
		if err != nil || pct < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tolPct must be a non-negative number"})
			return
		}
		params.Tolerances.RelativePct = pct
	}
	if v := c.Query("tolAbs"); v != "" {
		abs, err := decimal.NewFromString(v)
		if err != nil || abs.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tolAbs must be a non-negative amount"})
			return
		}
		params.Tolerances.AbsoluteAmount = abs
	}
	if v := c.Query("maxDays"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "maxDays must be a positive integer"})
			return
		}
		params.Tolerances.MaxDaysWindow = days
	}

	report, err := h.Matcher.Suggestions(c.Request.Context(), middleware.TenantID(c), params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute suggestions"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetCoverage handles GET /coverage?days.
func (h *ReconciliationHandler) GetCoverage(c *gin.Context) {
	days := 30
	if v := c.Query("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = parsed
	}

	report, err := h.Coverage.Analyze(c.Request.Context(), middleware.TenantID(c), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute coverage"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListReceipts handles GET /receipts.
func (h *ReconciliationHandler) ListReceipts(c *gin.Context) {
	sinceDays := 0
	if v := c.Query("sinceDays"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sinceDays must be a positive integer"})
			return
		}
		sinceDays = parsed
	}

	receipts, err := h.Receipts.List(c.Request.Context(), middleware.TenantID(c), sinceDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list receipts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

type IngestReceiptRequest struct {
	Vendor        string `json:"vendor" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	Date          string `json:"date"`
	Status        string `json:"status"`
	HasAttachment bool   `json:"hasAttachment"`
	AttachmentURL string `json:"attachmentUrl"`
}

// IngestReceipt handles POST /receipts: records a receipt pushed from the
// accounting platform or entered by hand. Re-posting the same vendor, amount,
// and date is a no-op.
func (h *ReconciliationHandler) IngestReceipt(c *gin.Context) {
	var req IngestReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal number"})
		return
	}
	var date time.Time
	if req.Date != "" {
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
	}
	status := req.Status
	if status == "" {
		status = "pending"
	}

	err = h.Receipts.Upsert(c.Request.Context(), models.Receipt{
		TenantID:      middleware.TenantID(c),
		Vendor:        req.Vendor,
		Amount:        amount,
		Date:          date,
		Status:        status,
		HasAttachment: req.HasAttachment,
		AttachmentURL: req.AttachmentURL,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record receipt"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"vendor": req.Vendor, "amount": req.Amount})
}

type AttachRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
	ReceiptID     string `json:"receiptId"`
	ReceiptURL    string `json:"receiptUrl"`
}

// AttachReceipt handles POST /receipts/attach: link an existing receipt or
// record an uploaded attachment URL as new evidence.
func (h *ReconciliationHandler) AttachReceipt(c *gin.Context) {
	var req AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ReceiptID == "" && req.ReceiptURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiptId or receiptUrl is required"})
		return
	}

	tenantID := middleware.TenantID(c)
	receiptID := req.ReceiptID
	var err error
	if receiptID != "" {
		err = h.Receipts.Attach(c.Request.Context(), tenantID, req.TransactionID, receiptID)
	} else {
		receiptID, err = h.Receipts.AttachURL(c.Request.Context(), tenantID, req.TransactionID, req.ReceiptURL)
	}

	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction or receipt not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to attach receipt"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_id": req.TransactionID, "receipt_id": receiptID})
}
