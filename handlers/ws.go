package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olahol/melody"

	"github.com/ledgermate/recon-api/middleware"
)

// WSHandler pushes engine events (sync progress, batch-run completion) to
// dashboards subscribed for their tenant.
type WSHandler struct {
	M *melody.Melody
}

func NewWSHandler() *WSHandler {
	m := melody.New()

	m.Config.MaxMessageSize = 1024 * 1024

	// Keep-alive matters behind cloud load balancers.
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	m.HandleConnect(func(s *melody.Session) {
		tenantID, _ := s.Get("tenant_id")
		log.Printf("✅ Client connected to tenant stream: %v", tenantID)
	})

	m.HandleDisconnect(func(s *melody.Session) {
		tenantID, _ := s.Get("tenant_id")
		log.Printf("🔌 Client disconnected from tenant stream: %v", tenantID)
	})

	m.HandleError(func(s *melody.Session, err error) {
		log.Printf("❌ WebSocket error: %v", err)
	})

	return &WSHandler{M: m}
}

// HandleWS upgrades the request and pins the session to the caller's tenant.
func (h *WSHandler) HandleWS(c *gin.Context) {
	keys := map[string]any{"tenant_id": middleware.TenantID(c)}
	if err := h.M.HandleRequestWithKeys(c.Writer, c.Request, keys); err != nil {
		log.Printf("❌ Failed to upgrade websocket: %v", err)
	}
}

// BroadcastEvent sends an event to every client subscribed to the tenant.
func (h *WSHandler) BroadcastEvent(tenantID, eventType string, payload any) {
	msg, err := json.Marshal(gin.H{"type": eventType, "payload": payload})
	if err != nil {
		log.Printf("⚠️ Failed to marshal %s event: %v", eventType, err)
		return
	}

	err = h.M.BroadcastFilter(msg, func(q *melody.Session) bool {
		id, exists := q.Get("tenant_id")
		return exists && id == tenantID
	})
	if err != nil {
		log.Printf("⚠️ Error broadcasting to tenant %s: %v", tenantID, err)
	}
}
