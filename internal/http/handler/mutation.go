package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"janatpmp.app/syncd/internal/capture"
	"janatpmp.app/syncd/internal/http/dto"
	"janatpmp.app/syncd/internal/model"
	"janatpmp.app/syncd/internal/service"
)

// MutationHandler accepts mutation records from out-of-process producers.
// In-process producers capture inside their own transaction instead.
type MutationHandler struct {
	recorder *service.Recorder
}

func NewMutationHandler(recorder *service.Recorder) *MutationHandler {
	return &MutationHandler{recorder: recorder}
}

func (h *MutationHandler) Record(c *gin.Context) {
	var req dto.RecordMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	op := model.Operation(req.Operation)
	if !op.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operation must be INSERT, UPDATE or DELETE"})
		return
	}

	var snapshot any
	if len(req.Payload) > 0 {
		snapshot = req.Payload
	}

	ev, err := h.recorder.Record(c.Request.Context(), op, req.EntityType, req.EntityID, snapshot)
	if err != nil {
		if capture.IsCaptureError(err) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record mutation"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"event": ev})
}
