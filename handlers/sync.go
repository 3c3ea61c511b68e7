package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ledgermate/recon-api/middleware"
	"github.com/ledgermate/recon-api/services"
)

// Syncer is the slice of SyncService the handler needs.
type Syncer interface {
	Sync(ctx context.Context, tenantID string) (*services.SyncResult, error)
}

type SyncHandler struct {
	Syncer Syncer
	Events Broadcaster
}

// RunSync handles POST /sync: one pagination pass against the accounting
// platform. Upstream failures surface as 502 with the platform's message.
func (h *SyncHandler) RunSync(c *gin.Context) {
	tenantID := middleware.TenantID(c)

	result, err := h.Syncer.Sync(c.Request.Context(), tenantID)
	if err != nil {
		status := http.StatusInternalServerError
		var upstream *services.UpstreamError
		if errors.As(err, &upstream) {
			status = http.StatusBadGateway
		}
		body := gin.H{"error": err.Error()}
		if result != nil {
			body["partial"] = result
		}
		c.JSON(status, body)
		return
	}

	if h.Events != nil {
		h.Events.BroadcastEvent(tenantID, "sync_completed", result)
	}
	c.JSON(http.StatusOK, result)
}
