package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ledgermate/recon-api/middleware"
	"github.com/ledgermate/recon-api/models"
	"github.com/ledgermate/recon-api/services"
)

type RuleHandler struct {
	Service *services.RuleService
}

// ListRules handles GET /rules.
func (h *RuleHandler) ListRules(c *gin.Context) {
	rules, err := h.Service.ListRules(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rules"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

type CreateRuleRequest struct {
	Pattern    string  `json:"pattern" binding:"required"`
	Category   string  `json:"category" binding:"required"`
	Priority   int     `json:"priority"`
	Confidence float64 `json:"confidence"`
}

// CreateRule handles POST /rules. The rule cache is invalidated inside the
// service, so the next resolve sees the new rule immediately.
func (h *RuleHandler) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.Service.CreateRule(c.Request.Context(), models.Rule{
		TenantID:   middleware.TenantID(c),
		Pattern:    req.Pattern,
		Category:   req.Category,
		Priority:   req.Priority,
		Confidence: req.Confidence,
	})
	if err != nil {
		if strings.Contains(err.Error(), "invalid pattern") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create rule"})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// DeleteRule handles DELETE /rules/:id.
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	err := h.Service.DeleteRule(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete rule"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}
