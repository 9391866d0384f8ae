package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sajithrajan03/GreenSquares/commit"
	"github.com/Sajithrajan03/GreenSquares/config"
	gateway "github.com/Sajithrajan03/GreenSquares/github"
	"github.com/Sajithrajan03/GreenSquares/githubtest"
	"github.com/Sajithrajan03/GreenSquares/oauth"
	"github.com/Sajithrajan03/GreenSquares/session"
)

const frontend = "http://localhost:5173"

type env struct {
	srv      *Server
	fake     *githubtest.Server
	sessions *session.MemoryStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	fake := githubtest.NewServer(t)
	fake.AddUser("octocat", "gho_abc")

	gh, err := gateway.NewClient(gateway.Options{BaseURL: fake.APIURL()})
	require.NoError(t, err)

	sessions := session.NewMemoryStore()
	ctrl, err := oauth.NewController(oauth.Options{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:3000/auth/github/callback",
		Scopes:       []string{"repo", "read:user", "user:email"},
		AuthURL:      fake.AuthURL(),
		TokenURL:     fake.TokenURL(),
		FrontendURL:  frontend,
		StateTTL:     time.Minute,
	}, sessions, gh)
	require.NoError(t, err)

	cfg := config.Config{Env: "test", Port: 3000, FrontendURL: frontend}
	srv := New(cfg, Deps{
		Sessions: sessions,
		GitHub:   gh,
		OAuth:    ctrl,
		Commits:  commit.NewBuilder(""),
	})
	return &env{srv: srv, fake: fake, sessions: sessions}
}

func (e *env) login(t *testing.T) string {
	t.Helper()
	token, err := e.sessions.Create(context.Background(),
		session.Credentials{AccessToken: "gho_abc", TokenType: "bearer"},
		json.RawMessage(`{"login":"octocat"}`))
	require.NoError(t, err)
	return token
}

func (e *env) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRootAndConfig(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"message": "GreenSquares Backend API", "status": "running"}, decode(t, rec))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = e.do(t, http.MethodGet, "/api/config", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"success": true,
		"config": map[string]any{
			"backendUrl":    "http://localhost:3000",
			"githubAuthUrl": "http://localhost:3000/auth/github",
			"environment":   "test",
		},
	}, decode(t, rec))
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodDelete, "/api/me"},
	} {
		rec := e.do(t, tc.method, tc.path, "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, map[string]any{"success": false, "error": "Endpoint not found"}, decode(t, rec))
	}
}

func TestSessionRequired(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No session token provided", decode(t, rec)["error"])

	rec = e.do(t, http.MethodGet, "/api/repositories", "", "made-up")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid session token", decode(t, rec)["error"])
	assert.Empty(t, e.fake.Calls())
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	e.fake.Events["octocat"] = []map[string]any{
		{"type": "PushEvent", "created_at": "2024-05-03T10:00:00Z"},
		{"type": "PushEvent", "created_at": "2024-05-03T08:00:00Z"},
		{"type": "WatchEvent", "created_at": "2024-05-02T10:00:00Z"},
		{"type": "PushEvent", "created_at": "2024-05-01T10:00:00Z"},
		{"type": "CreateEvent", "created_at": "2024-04-30T10:00:00Z"},
	}
	token := e.login(t)

	rec := e.do(t, http.MethodGet, "/api/me", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	user := body["user"].(map[string]any)
	assert.Equal(t, "octocat", user["login"])
	assert.Equal(t, "bio of octocat", user["bio"])
	assert.Contains(t, user, "location")

	assert.Equal(t, map[string]any{
		"recentContributions": float64(4),
		"lastActivity":        "2024-05-03T10:00:00Z",
		"currentStreak":       float64(2),
		"longestStreak":       float64(3),
		"totalContributions":  float64(4),
	}, body["stats"])
}

func TestMeUpstreamFailure(t *testing.T) {
	e := newEnv(t)
	e.fake.SetFail("GET events", http.StatusServiceUnavailable)
	token := e.login(t)

	rec := e.do(t, http.MethodGet, "/api/me", "", token)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, map[string]any{
		"success": false,
		"error":   "Failed to fetch user data",
		"details": "Service Unavailable",
	}, decode(t, rec))
}

func TestPublicUser(t *testing.T) {
	e := newEnv(t)
	e.fake.Events["octocat"] = []map[string]any{
		{"type": "PullRequestEvent", "created_at": "2024-05-03T10:00:00Z"},
		{"type": "IssuesEvent", "created_at": "2024-05-02T10:00:00Z"},
	}

	rec := e.do(t, http.MethodGet, "/api/user/octocat", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	user := body["user"].(map[string]any)
	assert.Equal(t, "octocat", user["login"])
	assert.NotContains(t, user, "bio")
	assert.Equal(t, map[string]any{
		"recentContributions": float64(1),
		"lastActivity":        "2024-05-03T10:00:00Z",
	}, body["stats"])
	assert.ElementsMatch(t, []string{"GET users", "GET events"}, e.fake.Calls())
}

func TestPublicUserNoEvents(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/user/octocat", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"recentContributions": float64(0),
		"lastActivity":        nil,
	}, decode(t, rec)["stats"])
}

func TestPublicUserNotFound(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/user/ghost", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]any{
		"success": false,
		"error":   "Failed to fetch user data",
		"details": "Not Found",
	}, decode(t, rec))
}

func TestStreak(t *testing.T) {
	e := newEnv(t)
	var events []map[string]any
	for range 14 {
		events = append(events, map[string]any{"type": "PushEvent", "created_at": "2024-05-03T10:00:00Z"})
	}
	e.fake.Events["octocat"] = events

	rec := e.do(t, http.MethodGet, "/api/user/octocat/streak", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"success": true,
		"streak": map[string]any{
			"current":             float64(2),
			"longest":             float64(4),
			"total_contributions": float64(14),
			"last_contribution":   "2024-05-03T10:00:00Z",
		},
	}, decode(t, rec))
}

func TestRepositoriesAndContents(t *testing.T) {
	e := newEnv(t)
	e.fake.AddRepo("octocat", "hello", "main")
	e.fake.Contents["docs/a.md"] = map[string]any{"type": "file", "name": "a.md", "path": "docs/a.md"}
	token := e.login(t)

	rec := e.do(t, http.MethodGet, "/api/repositories", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	repos := decode(t, rec)["repositories"].([]any)
	require.Len(t, repos, 1)
	assert.Equal(t, "octocat/hello", repos[0].(map[string]any)["full_name"])

	rec = e.do(t, http.MethodGet, "/api/repositories/octocat/hello/contents?path=docs/a.md", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	contents := decode(t, rec)["contents"].(map[string]any)
	assert.Equal(t, "docs/a.md", contents["path"])

	rec = e.do(t, http.MethodGet, "/api/repositories/octocat/hello/contents?path=missing.md", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Failed to fetch repository contents", decode(t, rec)["error"])
}

func TestCreateCommit(t *testing.T) {
	e := newEnv(t)
	e.fake.AddRepo("octocat", "hello", "main")
	token := e.login(t)

	rec := e.do(t, http.MethodPost, "/api/repositories/octocat/hello/commit",
		`{"message":"add notes","path":"notes.md","content":"hello"}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	c := body["commit"].(map[string]any)
	sha := c["sha"].(string)
	assert.Equal(t, "add notes", c["message"])
	assert.Equal(t, "https://github.com/octocat/hello/commit/"+sha, c["html_url"])
	assert.Equal(t, "Octo Cat", c["author"].(map[string]any)["name"])
	assert.NotContains(t, c, "Branch")

	assert.Equal(t, sha, e.fake.Repo("octocat", "hello").Refs["main"])
}

func TestCreateCommitRequiresMessageAndPath(t *testing.T) {
	e := newEnv(t)
	token := e.login(t)

	rec := e.do(t, http.MethodPost, "/api/repositories/octocat/hello/commit", `{"message":"m"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message and path are required", decode(t, rec)["error"])

	rec = e.do(t, http.MethodPost, "/api/repositories/octocat/hello/commit", `{`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode(t, rec)["error"])
	assert.Empty(t, e.fake.Calls())
}

func TestCreateCommitEmptyBody(t *testing.T) {
	e := newEnv(t)
	token := e.login(t)

	rec := e.do(t, http.MethodPost, "/api/repositories/octocat/hello/commit", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message and path are required", decode(t, rec)["error"])
	assert.Empty(t, e.fake.Calls())
}

func TestCreateCommitConflict(t *testing.T) {
	e := newEnv(t)
	e.fake.AddRepo("octocat", "hello", "main")
	e.fake.SetFail("PATCH update-ref", http.StatusConflict)
	token := e.login(t)

	rec := e.do(t, http.MethodPost, "/api/repositories/octocat/hello/commit",
		`{"message":"m","path":"notes.md","content":"hello"}`, token)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, map[string]any{
		"success":           false,
		"error":             "Conflict occurred while creating commit. Repository may be in an inconsistent state.",
		"reason":            "conflict",
		"stage":             "update_ref",
		"details":           "Conflict",
		"documentation_url": "https://docs.github.com/rest",
	}, decode(t, rec))
}

func TestCreateCommitUnknownRepository(t *testing.T) {
	e := newEnv(t)
	token := e.login(t)

	rec := e.do(t, http.MethodPost, "/api/repositories/octocat/missing/commit",
		`{"message":"m","path":"notes.md"}`, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not_found", body["reason"])
	assert.Equal(t, "repository", body["stage"])
	assert.Equal(t, "Repository not found or not accessible.", body["error"])
}

func TestClearSession(t *testing.T) {
	e := newEnv(t)
	token := e.login(t)

	rec := e.do(t, http.MethodPost, "/api/auth/clear", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"success": true,
		"message": "Session cleared. Please re-authenticate to get updated permissions.",
	}, decode(t, rec))
	assert.Equal(t, 0, e.sessions.Len())

	rec = e.do(t, http.MethodPost, "/api/auth/clear", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/me", "", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidateToken(t *testing.T) {
	e := newEnv(t)
	token := e.login(t)

	rec := e.do(t, http.MethodGet, "/api/auth/validate", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"success":          true,
		"token_valid":      true,
		"user":             "octocat",
		"scopes_available": true,
		"message":          "Token is valid and has repository access",
	}, decode(t, rec))
	assert.Equal(t, []string{"GET user", "GET repos"}, e.fake.Calls())
}

func TestValidateTokenRejected(t *testing.T) {
	e := newEnv(t)
	e.fake.SetFail("GET user", http.StatusUnauthorized)
	token := e.login(t)

	rec := e.do(t, http.MethodGet, "/api/auth/validate", "", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]any{
		"success":     false,
		"token_valid": false,
		"error":       "Unauthorized",
		"suggestion":  "Please re-authenticate to get proper permissions",
	}, decode(t, rec))
}

// beginLogin starts the OAuth flow and returns the issued state together
// with the cookie that binds it to this browser.
func (e *env) beginLogin(t *testing.T) (string, *http.Cookie) {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/auth/github", "", "")
	require.Equal(t, http.StatusFound, rec.Code)

	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return state, cookies[0]
}

func (e *env) callback(t *testing.T, query string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?"+query, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestOAuthStateCookie(t *testing.T) {
	e := newEnv(t)

	state, cookie := e.beginLogin(t)
	assert.Equal(t, "gs_oauth_state", cookie.Name)
	assert.Equal(t, state, cookie.Value)
	assert.Equal(t, "/auth/github", cookie.Path)
	assert.Equal(t, 60, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.False(t, cookie.Secure)
}

func TestOAuthRoundTrip(t *testing.T) {
	e := newEnv(t)
	e.fake.Codes["good"] = "gho_abc"

	state, cookie := e.beginLogin(t)

	rec := e.callback(t, "code=good&state="+url.QueryEscape(state), cookie)
	require.Equal(t, http.StatusFound, rec.Code)
	done, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", done.Path)
	assert.Equal(t, "octocat", done.Query().Get("user"))

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, "gs_oauth_state", cleared[0].Name)
	assert.Less(t, cleared[0].MaxAge, 0)

	rec = e.do(t, http.MethodGet, "/api/me", "", done.Query().Get("token"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOAuthCallbackFromAnotherBrowser(t *testing.T) {
	e := newEnv(t)
	e.fake.Codes["attacker-code"] = "gho_abc"

	// The state was issued to one browser; the callback arrives in another.
	state, _ := e.beginLogin(t)

	rec := e.callback(t, "code=attacker-code&state="+url.QueryEscape(state), nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, frontend+"?error=invalid_state", rec.Header().Get("Location"))

	_, otherCookie := e.beginLogin(t)
	rec = e.callback(t, "code=attacker-code&state="+url.QueryEscape(state), otherCookie)
	assert.Equal(t, frontend+"?error=invalid_state", rec.Header().Get("Location"))

	assert.Equal(t, 0, e.sessions.Len())
	assert.NotContains(t, e.fake.Calls(), "POST token")
}

func TestOAuthCallbackFailures(t *testing.T) {
	e := newEnv(t)

	rec := e.callback(t, "state=x", &http.Cookie{Name: "gs_oauth_state", Value: "x"})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, frontend+"?error=no_code", rec.Header().Get("Location"))

	rec = e.callback(t, "code=good&state=forged", &http.Cookie{Name: "gs_oauth_state", Value: "forged"})
	assert.Equal(t, frontend+"?error=invalid_state", rec.Header().Get("Location"))

	state, cookie := e.beginLogin(t)
	rec = e.callback(t, "code=stale&state="+url.QueryEscape(state), cookie)
	assert.Equal(t, frontend+"?error=auth_failed", rec.Header().Get("Location"))

	assert.Equal(t, 0, e.sessions.Len())
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/me", nil)
	req.Header.Set("Origin", frontend)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, frontend, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestPanicHandler(t *testing.T) {
	h := PanicHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"success": false, "error": "Something went wrong!"}, decode(t, rec))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	e := newEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.srv.Serve(ctx, ln, time.Second) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
