// Package api is the REST facade consumed by the dashboard UI.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/asheshgoplani/agent-relay/internal/registry"
	"github.com/asheshgoplani/agent-relay/internal/status"
	"github.com/asheshgoplani/agent-relay/internal/store"
	"github.com/asheshgoplani/agent-relay/internal/tmux"
)

// Options configures the REST handlers.
type Options struct {
	// BasePath is the resolved projects directory.
	BasePath string
	// Whitelist is returned verbatim by GET /api/projects.
	Whitelist []string
	// PreviewLines bounds scrollback returned by the preview endpoint.
	PreviewLines int
	// CaptureTimeout bounds the tmux capture command for previews.
	CaptureTimeout time.Duration
}

// Handler bundles the REST endpoints and their dependencies.
type Handler struct {
	registry *registry.Registry
	store    *store.Store
	tracker  *status.Tracker
	executor tmux.Executor
	opts     Options
}

func New(reg *registry.Registry, st *store.Store, tracker *status.Tracker, executor tmux.Executor, opts Options) *Handler {
	if opts.PreviewLines <= 0 {
		opts.PreviewLines = 100
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = 5 * time.Second
	}
	return &Handler{
		registry: reg,
		store:    st,
		tracker:  tracker,
		executor: executor,
		opts:     opts,
	}
}

// Register mounts every REST route on r.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	api.GET("/projects", h.listProjects)
	api.GET("/folders", h.listFolders)
	api.GET("/clone/preview", h.clonePreview)
	api.POST("/clone", h.clone)

	api.GET("/sessions", h.listSessions)
	api.GET("/sessions/archived", h.listArchivedSessions)
	api.GET("/sessions/:name/preview", h.sessionPreview)
	api.POST("/sessions/:name/archive", h.archiveSession)
	api.DELETE("/sessions/:name", h.killSession)

	api.GET("/environments", h.listEnvironments)
	api.POST("/environments", h.createEnvironment)
	api.PUT("/environments/:id", h.updateEnvironment)
	api.DELETE("/environments/:id", h.deleteEnvironment)
	api.POST("/environments/:id/default", h.setDefaultEnvironment)

	api.POST("/hooks", h.hookEvent)
	api.POST("/heartbeat", h.heartbeat)
}

func errorBody(msg string) gin.H {
	return gin.H{"error": msg}
}
