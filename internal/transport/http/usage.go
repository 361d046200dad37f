package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vistream/panel/internal/repository/postgres"
	"github.com/vistream/panel/internal/transport/http/middleware"
)

type UsageHandler struct {
	Ledger *postgres.StreamRepo
}

func NewUsageHandler(ledger *postgres.StreamRepo) *UsageHandler {
	return &UsageHandler{Ledger: ledger}
}

// Summary aggregates the account's usage over the requested window,
// defaulting to the last 7 days.
func (h *UsageHandler) Summary(c *gin.Context) {
	account, ok := middleware.AccountFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > 90 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days parameter"})
		return
	}

	since := time.Now().AddDate(0, 0, -days)
	summary, err := h.Ledger.Summary(account.ID, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate usage"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Active lists the account's currently open stream sessions
func (h *UsageHandler) Active(c *gin.Context) {
	account, ok := middleware.AccountFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	sessions, err := h.Ledger.ListActiveByAccount(account.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch active streams"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// History lists the account's most recent stream sessions
func (h *UsageHandler) History(c *gin.Context) {
	account, ok := middleware.AccountFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}

	sessions, err := h.Ledger.History(account.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stream history"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}
