package api

import (
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

// listProjects returns the configured whitelist exactly as configured.
func (h *Handler) listProjects(c *gin.Context) {
	whitelist := h.opts.Whitelist
	if whitelist == nil {
		whitelist = []string{}
	}
	c.JSON(http.StatusOK, whitelist)
}

// listFolders returns the non-hidden directories under the project base
// path, sorted alphabetically.
func (h *Handler) listFolders(c *gin.Context) {
	entries, err := os.ReadDir(h.opts.BasePath)
	if err != nil {
		c.JSON(http.StatusOK, []string{})
		return
	}

	folders := []string{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		folders = append(folders, e.Name())
	}
	sort.Strings(folders)
	c.JSON(http.StatusOK, folders)
}

var repoNamePattern = regexp.MustCompile(`[^\w.-]`)

// projectNameFromURL derives a folder name from a git URL: last path
// segment, .git suffix stripped, unsafe characters removed.
func projectNameFromURL(url string) string {
	name := strings.TrimSuffix(url, "/")
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".git")
	return repoNamePattern.ReplaceAllString(name, "")
}

func (h *Handler) clonePreview(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, errorBody("Missing url parameter"))
		return
	}

	name := projectNameFromURL(url)
	_, statErr := os.Stat(filepath.Join(h.opts.BasePath, name))
	c.JSON(http.StatusOK, gin.H{
		"projectName": name,
		"exists":      statErr == nil,
	})
}

type cloneRequest struct {
	RepoURL     string `json:"repoUrl"`
	ProjectName string `json:"projectName"`
}

func (h *Handler) clone(c *gin.Context) {
	var req cloneRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RepoURL == "" {
		c.JSON(http.StatusBadRequest, errorBody("Missing repoUrl"))
		return
	}

	name := req.ProjectName
	if name == "" {
		name = projectNameFromURL(req.RepoURL)
	}
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Could not derive project name from URL",
		})
		return
	}

	dest := filepath.Join(h.opts.BasePath, name)
	if _, err := os.Stat(dest); err == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Project already exists: " + name,
		})
		return
	}

	out, err := exec.CommandContext(c.Request.Context(), "git", "clone", req.RepoURL, dest).CombinedOutput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   strings.TrimSpace(string(out)),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"projectName": name,
		"path":        dest,
	})
}
