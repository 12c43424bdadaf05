package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/asheshgoplani/agent-relay/internal/session"
	"github.com/asheshgoplani/agent-relay/internal/store"
)

type environmentRequest struct {
	Name      string            `json:"name"`
	Provider  session.Provider  `json:"provider"`
	IsDefault bool              `json:"isDefault"`
	Variables map[string]string `json:"variables"`
}

func (r *environmentRequest) validate() string {
	if r.Name == "" {
		return "Missing name"
	}
	switch r.Provider {
	case session.ProviderAnthropic, session.ProviderOpenRouter:
		return ""
	default:
		return "Unknown provider"
	}
}

func (h *Handler) listEnvironments(c *gin.Context) {
	envs, err := h.store.ListEnvironments()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusOK, envs)
}

func (h *Handler) createEnvironment(c *gin.Context) {
	var req environmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, errorBody(msg))
		return
	}

	env := &session.Environment{
		Name:      req.Name,
		Provider:  req.Provider,
		IsDefault: req.IsDefault,
		Variables: req.Variables,
	}
	if err := h.store.CreateEnvironment(env); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, env)
}

func (h *Handler) updateEnvironment(c *gin.Context) {
	var req environmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, errorBody(msg))
		return
	}

	env := &session.Environment{
		ID:        c.Param("id"),
		Name:      req.Name,
		Provider:  req.Provider,
		IsDefault: req.IsDefault,
		Variables: req.Variables,
	}
	if err := h.store.UpdateEnvironment(env); err != nil {
		if errors.Is(err, store.ErrEnvironmentNotFound) {
			c.JSON(http.StatusNotFound, errorBody("Environment not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusOK, env)
}

func (h *Handler) deleteEnvironment(c *gin.Context) {
	if err := h.store.DeleteEnvironment(c.Param("id")); err != nil {
		if errors.Is(err, store.ErrEnvironmentNotFound) {
			c.JSON(http.StatusNotFound, errorBody("Environment not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) setDefaultEnvironment(c *gin.Context) {
	if err := h.store.SetDefaultEnvironment(c.Param("id")); err != nil {
		if errors.Is(err, store.ErrEnvironmentNotFound) {
			c.JSON(http.StatusNotFound, errorBody("Environment not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
