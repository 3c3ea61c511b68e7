package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ledgermate/recon-api/middleware"
	"github.com/ledgermate/recon-api/services"
)

type TransactionHandler struct {
	Service *services.TransactionService
}

// ListTransactions handles GET /transactions with server-side filtering.
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	filters, err := parseListFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txs, err := h.Service.List(c.Request.Context(), middleware.TenantID(c), filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

type SetCategoryRequest struct {
	Category string `json:"category" binding:"required"`
}

// SetCategory handles POST /transactions/:id/category. Manual edits always
// win: confidence 1.0, source manual.
func (h *TransactionHandler) SetCategory(c *gin.Context) {
	var req SetCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.Service.SetCategory(c.Request.Context(), middleware.TenantID(c), c.Param("id"), req.Category)
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set category"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "category": req.Category, "source": "manual"})
}

type BulkCategoryRequest struct {
	IDs      []string `json:"ids" binding:"required,min=1"`
	Category string   `json:"category" binding:"required"`
}

// BulkSetCategory handles POST /transactions/bulk-category.
func (h *TransactionHandler) BulkSetCategory(c *gin.Context) {
	var req BulkCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.Service.BulkSetCategory(c.Request.Context(), middleware.TenantID(c), req.IDs, req.Category)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated, "category": req.Category})
}

func parseListFilters(c *gin.Context) (services.ListFilters, error) {
	f := services.ListFilters{
		Category:  c.Query("category"),
		Query:     c.Query("q"),
		Direction: c.Query("direction"),
	}

	if v := c.Query("uncategorized"); v != "" {
		uncategorized, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("uncategorized must be a boolean")
		}
		f.Uncategorized = uncategorized
	}
	if v := c.Query("sinceDays"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return f, errors.New("sinceDays must be a non-negative integer")
		}
		f.SinceDays = days
	}
	if v := c.Query("from"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, errors.New("from must be YYYY-MM-DD")
		}
		f.From = from
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, errors.New("to must be YYYY-MM-DD")
		}
		f.To = to
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = limit
	}
	return f, nil
}
