package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/agent-relay/internal/registry"
	"github.com/asheshgoplani/agent-relay/internal/session"
	"github.com/asheshgoplani/agent-relay/internal/status"
	"github.com/asheshgoplani/agent-relay/internal/store"
)

// fakeExecutor is an in-memory tmux backend.
type fakeExecutor struct {
	sessions map[string]int64
	captured string
	killed   []string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{sessions: map[string]int64{}}
}

func (f *fakeExecutor) NewSession(name, workDir, command string) error { return nil }

func (f *fakeExecutor) KillSession(name string) error {
	f.killed = append(f.killed, name)
	delete(f.sessions, name)
	return nil
}

func (f *fakeExecutor) SessionExists(name string) (bool, error) {
	_, ok := f.sessions[name]
	return ok, nil
}

func (f *fakeExecutor) ListSessions() (map[string]int64, error) {
	out := make(map[string]int64, len(f.sessions))
	for k, v := range f.sessions {
		out[k] = v
	}
	return out, nil
}

func (f *fakeExecutor) SendKeys(name, keys string, literal bool) error { return nil }

func (f *fakeExecutor) CapturePaneHistory(ctx context.Context, name string, lines int) (string, error) {
	return f.captured, nil
}

func (f *fakeExecutor) ResizeWindow(name string, cols, rows int) error { return nil }
func (f *fakeExecutor) SetOption(name, option, value string) error { return nil }

type testEnv struct {
	router   *gin.Engine
	store    *store.Store
	registry *registry.Registry
	tracker  *status.Tracker
	executor *fakeExecutor
	basePath string
}

func newTestEnv(t *testing.T, whitelist []string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	executor := newFakeExecutor()
	tracker := status.NewTracker(st, nil, status.Options{})
	reg := registry.New(st, executor, tracker, registry.Options{})
	basePath := t.TempDir()

	handler := New(reg, st, tracker, executor, Options{
		BasePath:  basePath,
		Whitelist: whitelist,
	})

	router := gin.New()
	handler.Register(router)

	return &testEnv{
		router:   router,
		store:    st,
		registry: reg,
		tracker:  tracker,
		executor: executor,
		basePath: basePath,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestProjectsReturnsWhitelistVerbatim(t *testing.T) {
	env := newTestEnv(t, []string{"allowed-project", "another-project"})

	w := env.request(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"allowed-project", "another-project"}, decodeJSON[[]string](t, w))
}

func TestProjectsEmptyWhitelist(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{}, decodeJSON[[]string](t, w))
}

func TestFoldersSortedNonHidden(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, dir := range []string{"zeta", "alpha", ".hidden"} {
		require.NoError(t, os.Mkdir(filepath.Join(env.basePath, dir), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(env.basePath, "a-file"), nil, 0o644))

	w := env.request(t, http.MethodGet, "/api/folders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"alpha", "zeta"}, decodeJSON[[]string](t, w))
}

func TestClonePreviewMissingURL(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodGet, "/api/clone/preview", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing url parameter", decodeJSON[map[string]string](t, w)["error"])
}

func TestClonePreviewDerivesName(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodGet, "/api/clone/preview?url=https://github.com/acme/my-repo.git", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON[map[string]any](t, w)
	assert.Equal(t, "my-repo", body["projectName"])
	assert.Equal(t, false, body["exists"])
}

func TestCloneMissingRepoURL(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodPost, "/api/clone", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing repoUrl", decodeJSON[map[string]string](t, w)["error"])
}

func TestCloneExistingProjectRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.Mkdir(filepath.Join(env.basePath, "taken"), 0o755))

	w := env.request(t, http.MethodPost, "/api/clone", map[string]string{
		"repoUrl":     "https://github.com/acme/taken.git",
		"projectName": "taken",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON[map[string]any](t, w)
	assert.Equal(t, false, body["success"])
}

func TestListSessionsIncludesRunningFlag(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.registry.Ensure("proj--brave-lion-1", "proj")
	require.NoError(t, err)
	env.executor.sessions["proj--brave-lion-1"] = 100

	w := env.request(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	views := decodeJSON[[]map[string]any](t, w)
	require.Len(t, views, 1)
	assert.Equal(t, "proj--brave-lion-1", views[0]["name"])
	assert.Equal(t, true, views[0]["running"])
}

func TestSessionPreviewInvalidName(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodGet, "/api/sessions/invalid-name/preview", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid session name", decodeJSON[map[string]string](t, w)["error"])
}

func TestSessionPreviewReturnsScrollback(t *testing.T) {
	env := newTestEnv(t, nil)
	env.executor.captured = "$ ls\nREADME.md"

	w := env.request(t, http.MethodGet, "/api/sessions/proj--brave-lion-1/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "$ ls\nREADME.md", decodeJSON[map[string]string](t, w)["content"])
}

func TestDeleteSessionInvalidName(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodDelete, "/api/sessions/invalid-name", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid session name", decodeJSON[map[string]string](t, w)["error"])
}

func TestDeleteSessionKills(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.registry.Ensure("proj--brave-lion-1", "proj")
	require.NoError(t, err)
	env.executor.sessions["proj--brave-lion-1"] = 100

	w := env.request(t, http.MethodDelete, "/api/sessions/proj--brave-lion-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, env.executor.killed, "proj--brave-lion-1")

	_, err = env.store.GetSession("proj--brave-lion-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestArchiveAndListArchived(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.registry.Ensure("proj--brave-lion-1", "proj")
	require.NoError(t, err)

	w := env.request(t, http.MethodPost, "/api/sessions/proj--brave-lion-1/archive", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodGet, "/api/sessions", nil)
	assert.Empty(t, decodeJSON[[]map[string]any](t, w))

	w = env.request(t, http.MethodGet, "/api/sessions/archived", nil)
	archived := decodeJSON[[]map[string]any](t, w)
	require.Len(t, archived, 1)
	assert.Equal(t, "proj--brave-lion-1", archived[0]["name"])
}

func TestEnvironmentCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodPost, "/api/environments", map[string]any{
		"name":      "work",
		"provider":  "anthropic",
		"isDefault": true,
		"variables": map[string]string{"ANTHROPIC_API_KEY": "sk-test"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeJSON[session.Environment](t, w)
	require.NotEmpty(t, created.ID)

	w = env.request(t, http.MethodGet, "/api/environments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeJSON[[]session.Environment](t, w), 1)

	w = env.request(t, http.MethodPut, "/api/environments/"+created.ID, map[string]any{
		"name":     "renamed",
		"provider": "openrouter",
	})
	require.Equal(t, http.StatusOK, w.Code)

	got, err := env.store.GetEnvironment(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, session.ProviderOpenRouter, got.Provider)

	w = env.request(t, http.MethodDelete, "/api/environments/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodDelete, "/api/environments/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnvironmentValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodPost, "/api/environments", map[string]any{
		"provider": "anthropic",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, http.MethodPost, "/api/environments", map[string]any{
		"name":     "x",
		"provider": "not-a-provider",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unknown provider", decodeJSON[map[string]string](t, w)["error"])
}

func TestHookEndpointTransitionsStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodPost, "/api/hooks", map[string]any{
		"sessionName": "proj--brave-lion-1",
		"event":       "PreToolUse",
	})
	require.Equal(t, http.StatusOK, w.Code)

	sess, err := env.store.GetSession("proj--brave-lion-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusWorking, sess.Status)
	assert.Equal(t, session.SourceHook, sess.StatusSource)
}

func TestHookEndpointValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodPost, "/api/hooks", map[string]any{"event": "PreToolUse"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHeartbeatEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodPost, "/api/heartbeat", map[string]string{
		"sessionName": "proj--brave-lion-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	hb, ok := env.tracker.LastHeartbeat("proj--brave-lion-1")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), hb, time.Minute)
}

func TestHeartbeatEndpointValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodPost, "/api/heartbeat", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
