package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/asheshgoplani/agent-relay/internal/status"
)

// hookEvent ingests a lifecycle notification pushed by the monitored agent.
func (h *Handler) hookEvent(c *gin.Context) {
	var ev status.HookEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
		return
	}
	if ev.SessionName == "" || ev.Event == "" {
		c.JSON(http.StatusBadRequest, errorBody("Missing sessionName or event"))
		return
	}

	if err := h.tracker.ApplyHook(ev); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type heartbeatRequest struct {
	SessionName string `json:"sessionName"`
}

// heartbeat records a liveness ping. No status payload, staleness only.
func (h *Handler) heartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionName == "" {
		c.JSON(http.StatusBadRequest, errorBody("Missing sessionName"))
		return
	}

	if err := h.tracker.Heartbeat(req.SessionName); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
