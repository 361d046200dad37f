package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vistream/panel/internal/service/stream"
	"github.com/vistream/panel/internal/transport/http/middleware"
	"github.com/vistream/panel/pkg/httputil"
	"github.com/vistream/panel/pkg/useragent"
)

type StreamHandler struct {
	Manager *stream.Manager
}

func NewStreamHandler(manager *stream.Manager) *StreamHandler {
	return &StreamHandler{Manager: manager}
}

// Play admits a new stream on the channel. Quota and license checks happen
// here, before any upstream contact; the response carries the log ID and the
// proxy URL the player should fetch.
func (h *StreamHandler) Play(c *gin.Context) {
	account, ok := middleware.AccountFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	channelID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel ID"})
		return
	}

	meta := stream.ClientMeta{
		IP:         useragent.ExtractIPAddress(c.Request),
		UserAgent:  c.Request.UserAgent(),
		LicenseKey: httputil.GetLicenseKey(c.Request),
	}

	session, err := h.Manager.Start(account, channelID, meta)
	if err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"log_id":    session.ID,
		"proxy_url": fmt.Sprintf("/api/streams/%d/proxy?log_id=%s", channelID, session.ID),
	})
}

// Proxy relays the upstream bytes for an admitted stream. Errors map to
// statuses only while the response is unwritten; once the relay is flowing
// the handler returns whatever the relay managed to send.
func (h *StreamHandler) Proxy(c *gin.Context) {
	account, ok := middleware.AccountFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logID := c.Query("log_id")
	if logID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing log_id"})
		return
	}

	if err := h.Manager.Relay(c.Writer, c.Request, logID, account); err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
	}
}

// Stop closes a stream session. Stopping an already-closed session succeeds.
func (h *StreamHandler) Stop(c *gin.Context) {
	account, ok := middleware.AccountFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		LogID string `json:"log_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.LogID == "" {
		req.LogID = c.Query("log_id")
	}
	if req.LogID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing log_id"})
		return
	}

	if err := h.Manager.Stop(req.LogID, account); err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}
