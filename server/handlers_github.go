package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v74/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sajithrajan03/GreenSquares/commit"
	gateway "github.com/Sajithrajan03/GreenSquares/github"
	"github.com/Sajithrajan03/GreenSquares/logging"
	"github.com/Sajithrajan03/GreenSquares/streak"
)

type meRsp struct {
	Success bool             `json:"success"`
	User    gateway.Profile  `json:"user"`
	Stats   streak.DayStreak `json:"stats"`
}

type publicStats struct {
	RecentContributions int        `json:"recentContributions"`
	LastActivity        *time.Time `json:"lastActivity"`
}

type publicUserRsp struct {
	Success bool                  `json:"success"`
	User    gateway.PublicProfile `json:"user"`
	Stats   publicStats           `json:"stats"`
}

type streakRsp struct {
	Success bool               `json:"success"`
	Streak  streak.RatioStreak `json:"streak"`
}

type repositoriesRsp struct {
	Success      bool                 `json:"success"`
	Repositories []gateway.Repository `json:"repositories"`
}

type contentsRsp struct {
	Success  bool `json:"success"`
	Contents any  `json:"contents"`
}

type commitReq struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Path    string `json:"path"`
}

type commitRsp struct {
	Success bool           `json:"success"`
	Commit  *commit.Result `json:"commit"`
}

type commitErrorRsp struct {
	Success          bool          `json:"success"`
	Error            string        `json:"error"`
	Reason           commit.Reason `json:"reason"`
	Stage            commit.Stage  `json:"stage"`
	Details          string        `json:"details,omitempty"`
	DocumentationURL string        `json:"documentation_url,omitempty"`
}

func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tok := sessionFrom(ctx).Token()

	user, err := s.gh.AuthenticatedUser(ctx, tok)
	if err != nil {
		writeUpstreamError(w, r, err, "Failed to fetch user data")
		return
	}
	events, err := s.gh.RecentEvents(ctx, tok, user.GetLogin())
	if err != nil {
		writeUpstreamError(w, r, err, "Failed to fetch user data")
		return
	}

	writeJSON(w, http.StatusOK, meRsp{
		Success: true,
		User:    gateway.NewProfile(user),
		Stats:   streak.EstimateFromRecentDays(events),
	})
}

// getPublicUser fetches the profile and the public events concurrently.
func (s *Server) getPublicUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var (
		user   *github.User
		events []*github.Event
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		user, err = s.gh.PublicUser(gctx, username)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = s.gh.PublicEvents(gctx, username)
		return err
	})
	if err := g.Wait(); err != nil {
		writeUpstreamError(w, r, err, "Failed to fetch user data")
		return
	}

	stats := streak.EstimateFromRecentDays(events)
	writeJSON(w, http.StatusOK, publicUserRsp{
		Success: true,
		User:    gateway.NewPublicProfile(user),
		Stats: publicStats{
			RecentContributions: stats.RecentContributions,
			LastActivity:        stats.LastActivity,
		},
	})
}

func (s *Server) getStreak(w http.ResponseWriter, r *http.Request) {
	events, err := s.gh.PublicEvents(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeUpstreamError(w, r, err, "Failed to calculate streak data")
		return
	}
	writeJSON(w, http.StatusOK, streakRsp{
		Success: true,
		Streak:  streak.EstimateFromEventRatio(events),
	})
}

func (s *Server) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.gh.ListRepositories(r.Context(), sessionFrom(r.Context()).Token())
	if err != nil {
		writeUpstreamError(w, r, err, "Failed to fetch repositories")
		return
	}
	writeJSON(w, http.StatusOK, repositoriesRsp{Success: true, Repositories: repos})
}

func (s *Server) getContents(w http.ResponseWriter, r *http.Request) {
	contents, err := s.gh.Contents(r.Context(), sessionFrom(r.Context()).Token(),
		chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), r.URL.Query().Get("path"))
	if err != nil {
		writeUpstreamError(w, r, err, "Failed to fetch repository contents")
		return
	}
	writeJSON(w, http.StatusOK, contentsRsp{Success: true, Contents: contents})
}

// createCommit runs the commit pipeline detached from the client connection
// so a disconnect does not stop a half-applied sequence.
func (s *Server) createCommit(w http.ResponseWriter, r *http.Request) {
	var body commitReq
	// An empty body decodes to io.EOF and is reported as missing fields.
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Message == "" || body.Path == "" {
		writeError(w, http.StatusBadRequest, "Message and path are required")
		return
	}

	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	ctx := context.WithoutCancel(r.Context())
	gh := s.gh.API(ctx, sessionFrom(r.Context()).Token())

	res, err := s.commits.Build(ctx, gh, commit.Request{
		Owner:   owner,
		Repo:    repo,
		Message: body.Message,
		Path:    body.Path,
		Content: body.Content,
	})
	if err != nil {
		var ce *commit.Error
		if !errors.As(err, &ce) {
			logging.FromContext(ctx).WithError(err).Warn("commit request rejected")
			writeError(w, http.StatusBadRequest, "Message and path are required")
			return
		}
		logging.FromContext(ctx).WithError(err).WithFields(logrus.Fields{
			"owner":  owner,
			"repo":   repo,
			"stage":  ce.Stage,
			"reason": ce.Reason,
		}).Error("commit creation failed")
		writeJSON(w, ce.HTTPStatus(), commitErrorRsp{
			Error:            ce.UserMessage(),
			Reason:           ce.Reason,
			Stage:            ce.Stage,
			Details:          ce.Message,
			DocumentationURL: ce.DocumentationURL,
		})
		return
	}

	writeJSON(w, http.StatusOK, commitRsp{Success: true, Commit: res})
}
