// Package server is the HTTP surface of the backend: the OAuth redirects,
// the session-authenticated GitHub proxies, the quick commit endpoint and
// the public profile and streak lookups.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sajithrajan03/GreenSquares/commit"
	"github.com/Sajithrajan03/GreenSquares/config"
	gateway "github.com/Sajithrajan03/GreenSquares/github"
	"github.com/Sajithrajan03/GreenSquares/oauth"
	"github.com/Sajithrajan03/GreenSquares/session"
)

type Deps struct {
	Sessions session.Store
	GitHub   *gateway.Client
	OAuth    *oauth.Controller
	Commits  *commit.Builder
}

type Server struct {
	cfg      config.Config
	sessions session.Store
	gh       *gateway.Client
	auth     *oauth.Controller
	commits  *commit.Builder
	router   *chi.Mux
}

func New(cfg config.Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: deps.Sessions,
		gh:       deps.GitHub,
		auth:     deps.OAuth,
		commits:  deps.Commits,
		router:   chi.NewRouter(),
	}
	s.mountHandlers()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) mountHandlers() {
	r := s.router
	r.Use(RequestLogger)
	r.Use(PanicHandler)
	r.Use(CORS(s.cfg.FrontendURL))

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.notFound)

	r.Get("/", s.getRoot)
	r.Get("/api/config", s.getConfig)

	r.Get("/auth/github", s.startAuth)
	r.Get("/auth/github/callback", s.finishAuth)
	r.Post("/api/auth/clear", s.clearSession)

	r.Get("/api/user/{username}", s.getPublicUser)
	r.Get("/api/user/{username}/streak", s.getStreak)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/api/me", s.getMe)
		r.Get("/api/auth/validate", s.validateToken)
		r.Get("/api/repositories", s.listRepositories)
		r.Get("/api/repositories/{owner}/{repo}/contents", s.getContents)
		r.Post("/api/repositories/{owner}/{repo}/commit", s.createCommit)
	})
}

// Run serves on addr until ctx is done, then drains in-flight requests for
// at most grace.
func (s *Server) Run(ctx context.Context, addr string, grace time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, grace)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener, grace time.Duration) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithFields(logrus.Fields{
			"addr":     ln.Addr().String(),
			"frontend": s.cfg.FrontendURL,
		}).Info("GreenSquares backend listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		logrus.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
