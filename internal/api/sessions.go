package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/asheshgoplani/agent-relay/internal/session"
	"github.com/asheshgoplani/agent-relay/internal/store"
)

// sessionView is one row of GET /api/sessions: the stored record plus
// whether a live tmux session currently backs it.
type sessionView struct {
	*session.Session
	Running bool `json:"running"`
}

// listSessions returns every active session. Failures degrade to an empty
// list so the dashboard keeps rendering.
func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.registry.ListActive()
	if err != nil {
		log.Printf("api: list sessions: %v", err)
		c.JSON(http.StatusOK, []sessionView{})
		return
	}

	live := h.registry.ListLive()
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		_, running := live[s.Name]
		views = append(views, sessionView{Session: s, Running: running})
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) listArchivedSessions(c *gin.Context) {
	sessions, err := h.registry.ListArchived()
	if err != nil {
		log.Printf("api: list archived: %v", err)
		c.JSON(http.StatusOK, []*session.Session{})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// validSessionName enforces the generated-name pattern on :name params.
func validSessionName(c *gin.Context) (string, bool) {
	name := c.Param("name")
	if !session.ValidName(name) {
		c.JSON(http.StatusBadRequest, errorBody("Invalid session name"))
		return "", false
	}
	return name, true
}

// sessionPreview returns recent scrollback for a session. Capture is
// best-effort; a dead or missing session yields empty content.
func (h *Handler) sessionPreview(c *gin.Context) {
	name, ok := validSessionName(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.CaptureTimeout)
	defer cancel()

	content, err := h.executor.CapturePaneHistory(ctx, name, h.opts.PreviewLines)
	if err != nil {
		content = ""
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "content": content})
}

func (h *Handler) archiveSession(c *gin.Context) {
	name, ok := validSessionName(c)
	if !ok {
		return
	}

	if err := h.registry.Archive(name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorBody("Session not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) killSession(c *gin.Context) {
	name, ok := validSessionName(c)
	if !ok {
		return
	}

	if err := h.registry.Kill(name); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
