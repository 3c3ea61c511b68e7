package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ledgermate/recon-api/middleware"
	"github.com/ledgermate/recon-api/services"
)

// Applier is the slice of RuleApplier the handler needs.
type Applier interface {
	Apply(ctx context.Context, tenantID string, opts services.ApplyOptions) (*services.ApplyResult, error)
}

// Broadcaster pushes events to dashboards subscribed over WebSocket.
type Broadcaster interface {
	BroadcastEvent(tenantID, eventType string, payload any)
}

type ApplyHandler struct {
	Applier Applier
	Events  Broadcaster
}

// ApplyRules handles POST /apply-rules. A concurrent run for the same tenant
// fails fast with 409 {"error":"locked"} and touches zero rows.
func (h *ApplyHandler) ApplyRules(c *gin.Context) {
	var opts services.ApplyOptions
	if err := c.ShouldBindJSON(&opts); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenantID := middleware.TenantID(c)
	result, err := h.Applier.Apply(c.Request.Context(), tenantID, opts)
	if errors.Is(err, services.ErrLockConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "locked"})
		return
	}
	if err != nil {
		// A mid-run failure still carries partial stats for the rules that
		// completed before the abort.
		body := gin.H{"error": err.Error()}
		if result != nil {
			body["totalUpdatedRows"] = result.TotalUpdatedRows
			body["perRuleStats"] = result.PerRuleStats
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}

	if h.Events != nil {
		h.Events.BroadcastEvent(tenantID, "rules_applied", result)
	}
	c.JSON(http.StatusOK, result)
}
