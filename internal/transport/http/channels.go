package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vistream/panel/internal/repository/postgres"
)

type ChannelHandler struct {
	Channels *postgres.ChannelRepo
}

func NewChannelHandler(channels *postgres.ChannelRepo) *ChannelHandler {
	return &ChannelHandler{Channels: channels}
}

// List returns the channels available for playback. Upstream URLs are never
// serialized; clients only ever see proxy URLs.
func (h *ChannelHandler) List(c *gin.Context) {
	channels, err := h.Channels.ListActive()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch channels"})
		return
	}
	c.JSON(http.StatusOK, channels)
}
