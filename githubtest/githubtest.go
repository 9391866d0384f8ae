// Package githubtest is an in-memory stand-in for the parts of GitHub this
// service talks to: the OAuth token endpoint, the user and event endpoints,
// repository listing and contents, and the Git data API.
package githubtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type Commit struct {
	SHA     string
	Tree    string
	Parents []string
	Message string
}

// Repo is a tiny object store. Trees are flat path→blob listings.
type Repo struct {
	DefaultBranch string
	Refs          map[string]string
	Commits       map[string]Commit
	Trees         map[string][]TreeEntry
	Blobs         map[string]string
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	seq      int
	Users    map[string]map[string]any
	Tokens   map[string]string
	Codes    map[string]string
	Events   map[string][]map[string]any
	Repos    map[string]*Repo
	Contents map[string]any
	// Fail makes a route answer with a status; keys are "METHOD name" with
	// name one of repo, ref, commit, blob, tree, create-commit, update-ref,
	// user, users, events, repos, contents, token.
	Fail     map[string]int
	Requests []string
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Users:    make(map[string]map[string]any),
		Tokens:   make(map[string]string),
		Codes:    make(map[string]string),
		Events:   make(map[string][]map[string]any),
		Repos:    make(map[string]*Repo),
		Contents: make(map[string]any),
		Fail:     make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// AddUser registers login with an access token and returns the user object.
func (s *Server) AddUser(login, token string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := map[string]any{
		"login":        login,
		"id":           len(s.Users) + 1,
		"name":         strings.ToUpper(login[:1]) + login[1:],
		"avatar_url":   "https://avatars.example.com/" + login,
		"public_repos": 3,
		"followers":    5,
		"following":    1,
		"created_at":   "2015-03-01T10:00:00Z",
		"bio":          "bio of " + login,
	}
	s.Users[login] = user
	if token != "" {
		s.Tokens[token] = login
	}
	return user
}

// AddRepo creates owner/name with one commit C0 whose tree R0 holds README.md.
func (s *Server) AddRepo(owner, name, branch string) *Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Repo{
		DefaultBranch: branch,
		Refs:          map[string]string{branch: "C0"},
		Commits:       map[string]Commit{"C0": {SHA: "C0", Tree: "R0", Message: "initial"}},
		Trees:         map[string][]TreeEntry{"R0": {{Path: "README.md", Mode: "100644", Type: "blob", SHA: "B0"}}},
		Blobs:         map[string]string{"B0": "# readme"},
	}
	s.Repos[owner+"/"+name] = r
	return r
}

func (s *Server) Repo(owner, name string) *Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Repos[owner+"/"+name]
}

func (s *Server) SetFail(key string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fail[key] = status
}

func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Requests...)
}

// APIURL is the base URL to hand to the gateway.
func (s *Server) APIURL() string {
	return s.URL + "/"
}

func (s *Server) TokenURL() string {
	return s.URL + "/login/oauth/access_token"
}

func (s *Server) AuthURL() string {
	return s.URL + "/login/oauth/authorize"
}

func (s *Server) nextSHA(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

type handler func(w http.ResponseWriter, r *http.Request)

func (s *Server) route(mux *http.ServeMux, pattern, name string, h handler) {
	method := strings.SplitN(pattern, " ", 2)[0]
	key := method + " " + name
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.Requests = append(s.Requests, key)
		status, fail := s.Fail[key]
		s.mu.Unlock()
		if fail {
			writeJSON(w, status, map[string]any{
				"message":           http.StatusText(status),
				"documentation_url": "https://docs.github.com/rest",
			})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		h(w, r)
	})
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "POST /login/oauth/access_token", "token", s.handleToken)
	s.route(mux, "GET /user", "user", s.handleAuthenticatedUser)
	s.route(mux, "GET /user/repos", "repos", s.handleRepos)
	s.route(mux, "GET /users/{username}", "users", s.handleUser)
	s.route(mux, "GET /users/{username}/events", "events", s.handleEvents)
	s.route(mux, "GET /users/{username}/events/public", "events", s.handleEvents)
	s.route(mux, "GET /repos/{owner}/{repo}", "repo", s.handleRepo)
	s.route(mux, "GET /repos/{owner}/{repo}/contents/{path...}", "contents", s.handleContents)
	s.route(mux, "GET /repos/{owner}/{repo}/git/ref/{ref...}", "ref", s.handleGetRef)
	s.route(mux, "GET /repos/{owner}/{repo}/git/commits/{sha}", "commit", s.handleGetCommit)
	s.route(mux, "POST /repos/{owner}/{repo}/git/blobs", "blob", s.handleCreateBlob)
	s.route(mux, "POST /repos/{owner}/{repo}/git/trees", "tree", s.handleCreateTree)
	s.route(mux, "POST /repos/{owner}/{repo}/git/commits", "create-commit", s.handleCreateCommit)
	s.route(mux, "PATCH /repos/{owner}/{repo}/git/refs/{ref...}", "update-ref", s.handleUpdateRef)

	return mux
}

func (s *Server) login(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	login, ok := s.Tokens[parts[1]]
	return login, ok
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_request"})
		return
	}
	token, ok := s.Codes[r.Form.Get("code")]
	if !ok {
		// GitHub answers 200 with an error body for bad codes.
		writeJSON(w, http.StatusOK, map[string]any{
			"error":             "bad_verification_code",
			"error_description": "The code passed is incorrect or expired.",
		})
		return
	}
	delete(s.Codes, r.Form.Get("code"))
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"scope":        "repo,read:user,user:email",
	})
}

func (s *Server) handleAuthenticatedUser(w http.ResponseWriter, r *http.Request) {
	login, ok := s.login(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Bad credentials"})
		return
	}
	writeJSON(w, http.StatusOK, s.Users[login])
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.Users[r.PathValue("username")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := s.Events[r.PathValue("username")]
	if events == nil {
		events = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleRepos(w http.ResponseWriter, r *http.Request) {
	login, ok := s.login(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Bad credentials"})
		return
	}
	out := []map[string]any{}
	for full, repo := range s.Repos {
		owner, name, _ := strings.Cut(full, "/")
		if owner != login {
			continue
		}
		out = append(out, map[string]any{
			"id":             len(out) + 1,
			"name":           name,
			"full_name":      full,
			"private":        false,
			"html_url":       "https://github.com/" + full,
			"default_branch": repo.DefaultBranch,
			"updated_at":     "2024-05-01T00:00:00Z",
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) repo(w http.ResponseWriter, r *http.Request) (*Repo, bool) {
	repo, ok := s.Repos[r.PathValue("owner")+"/"+r.PathValue("repo")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
	}
	return repo, ok
}

func (s *Server) handleRepo(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           r.PathValue("repo"),
		"full_name":      r.PathValue("owner") + "/" + r.PathValue("repo"),
		"default_branch": repo.DefaultBranch,
	})
}

func (s *Server) handleContents(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.repo(w, r); !ok {
		return
	}
	body, ok := s.Contents[r.PathValue("path")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetRef(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(w, r)
	if !ok {
		return
	}
	branch := strings.TrimPrefix(r.PathValue("ref"), "heads/")
	sha, ok := repo.Refs[branch]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]any{"sha": sha, "type": "commit"},
	})
}

func (s *Server) handleGetCommit(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(w, r)
	if !ok {
		return
	}
	c, ok := repo.Commits[r.PathValue("sha")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, commitJSON(r, c))
}

func (s *Server) handleCreateBlob(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(w, r)
	if !ok {
		return
	}
	var body struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Encoding != "base64" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Invalid request."})
		return
	}
	sha := s.nextSHA("B")
	repo.Blobs[sha] = body.Content
	writeJSON(w, http.StatusCreated, map[string]any{"sha": sha})
}

func (s *Server) handleCreateTree(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(w, r)
	if !ok {
		return
	}
	var body struct {
		BaseTree string      `json:"base_tree"`
		Tree     []TreeEntry `json:"tree"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Invalid request."})
		return
	}
	base, ok := repo.Trees[body.BaseTree]
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "base_tree is not a valid tree"})
		return
	}
	merged := make(map[string]TreeEntry)
	var order []string
	for _, e := range append(append([]TreeEntry(nil), base...), body.Tree...) {
		if _, seen := merged[e.Path]; !seen {
			order = append(order, e.Path)
		}
		merged[e.Path] = e
	}
	entries := make([]TreeEntry, 0, len(order))
	for _, p := range order {
		entries = append(entries, merged[p])
	}
	sha := s.nextSHA("R")
	repo.Trees[sha] = entries
	writeJSON(w, http.StatusCreated, map[string]any{"sha": sha, "tree": entries})
}

func (s *Server) handleCreateCommit(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(w, r)
	if !ok {
		return
	}
	var body struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Invalid request."})
		return
	}
	c := Commit{SHA: s.nextSHA("C"), Tree: body.Tree, Parents: body.Parents, Message: body.Message}
	repo.Commits[c.SHA] = c
	writeJSON(w, http.StatusCreated, commitJSON(r, c))
}

func (s *Server) handleUpdateRef(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(w, r)
	if !ok {
		return
	}
	var body struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Invalid request."})
		return
	}
	branch := strings.TrimPrefix(r.PathValue("ref"), "heads/")
	head, ok := repo.Refs[branch]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	c, ok := repo.Commits[body.SHA]
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Object does not exist"})
		return
	}
	if !body.Force && (len(c.Parents) != 1 || c.Parents[0] != head) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Update is not a fast forward"})
		return
	}
	repo.Refs[branch] = body.SHA
	writeJSON(w, http.StatusOK, map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]any{"sha": body.SHA, "type": "commit"},
	})
}

func commitJSON(r *http.Request, c Commit) map[string]any {
	parents := make([]map[string]any, 0, len(c.Parents))
	for _, p := range c.Parents {
		parents = append(parents, map[string]any{"sha": p})
	}
	return map[string]any{
		"sha":      c.SHA,
		"message":  c.Message,
		"tree":     map[string]any{"sha": c.Tree},
		"parents":  parents,
		"html_url": fmt.Sprintf("https://github.com/%s/%s/commit/%s", r.PathValue("owner"), r.PathValue("repo"), c.SHA),
		"author": map[string]any{
			"name":  "Octo Cat",
			"email": "octo@example.com",
			"date":  "2024-05-03T10:00:00Z",
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
