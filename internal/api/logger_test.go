package api

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	return &buf
}

func TestRequestLoggerLogsMethodPathStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLog(t)

	router := gin.New()
	router.Use(RequestLogger())
	router.GET("/api/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, []string{})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions?project=demo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	line := buf.String()
	assert.Contains(t, line, "[INFO]")
	assert.Contains(t, line, "200")
	assert.Contains(t, line, "GET /api/sessions?project=demo")
}

func TestRequestLoggerSeverityFollowsStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLog(t)

	router := gin.New()
	router.Use(RequestLogger())
	router.POST("/api/clone", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing repoUrl"})
	})
	router.GET("/boom", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/clone", nil))
	assert.Contains(t, buf.String(), "[WARN]")

	buf.Reset()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Contains(t, buf.String(), "[ERROR]")
}
