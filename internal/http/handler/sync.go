package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"janatpmp.app/syncd/internal/service"
	"janatpmp.app/syncd/internal/store"
)

// SyncHandler serves the operational surface: pending depth per consumer,
// dead-letter listing, redrive.
type SyncHandler struct {
	monitor service.MonitorService
}

func NewSyncHandler(monitor service.MonitorService) *SyncHandler {
	return &SyncHandler{monitor: monitor}
}

func (h *SyncHandler) Pending(c *gin.Context) {
	counts, err := h.monitor.PendingCounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count pending events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": counts})
}

func (h *SyncHandler) DeadLetters(c *gin.Context) {
	consumer := c.Query("consumer")
	if consumer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "consumer query parameter is required"})
		return
	}

	limit := int32(100)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = int32(parsed)
	}

	letters, err := h.monitor.DeadLetters(c.Request.Context(), consumer, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list dead letters"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dead_letters": letters})
}

func (h *SyncHandler) Redrive(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dead letter id"})
		return
	}

	dl, err := h.monitor.Redrive(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "dead letter not found or already resolved"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to redrive dead letter"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dead_letter": dl})
}
