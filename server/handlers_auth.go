package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	gateway "github.com/Sajithrajan03/GreenSquares/github"
	"github.com/Sajithrajan03/GreenSquares/logging"
	"github.com/Sajithrajan03/GreenSquares/oauth"
)

type rootRsp struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

type clientConfig struct {
	BackendURL    string `json:"backendUrl"`
	GithubAuthURL string `json:"githubAuthUrl"`
	Environment   string `json:"environment"`
}

type configRsp struct {
	Success bool         `json:"success"`
	Config  clientConfig `json:"config"`
}

type messageRsp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type validateRsp struct {
	Success         bool   `json:"success"`
	TokenValid      bool   `json:"token_valid"`
	User            string `json:"user,omitempty"`
	ScopesAvailable bool   `json:"scopes_available,omitempty"`
	Message         string `json:"message,omitempty"`
	Error           string `json:"error,omitempty"`
	Suggestion      string `json:"suggestion,omitempty"`
}

func (s *Server) notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "Endpoint not found")
}

func (s *Server) getRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rootRsp{Message: "GreenSquares Backend API", Status: "running"})
}

func (s *Server) getConfig(w http.ResponseWriter, _ *http.Request) {
	backend := s.cfg.BackendURL()
	writeJSON(w, http.StatusOK, configRsp{
		Success: true,
		Config: clientConfig{
			BackendURL:    backend,
			GithubAuthURL: backend + "/auth/github",
			Environment:   s.cfg.Env,
		},
	})
}

const (
	stateCookie     = "gs_oauth_state"
	stateCookiePath = "/auth/github"
)

// startAuth redirects to GitHub and pins the issued state to this browser
// with a short-lived cookie scoped to the OAuth routes.
func (s *Server) startAuth(w http.ResponseWriter, r *http.Request) {
	target, state, err := s.auth.AuthorizationURL(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("github auth initiation failed")
		writeError(w, http.StatusInternalServerError, "Failed to initiate GitHub authentication")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     stateCookiePath,
		MaxAge:   int(s.auth.StateTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) finishAuth(w http.ResponseWriter, r *http.Request) {
	var bound string
	if c, err := r.Cookie(stateCookie); err == nil {
		bound = c.Value
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Path:     stateCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
	})

	q := r.URL.Query()
	res, err := s.auth.Complete(r.Context(), q.Get("code"), q.Get("state"), bound)
	if err != nil {
		code := oauth.FailureCodeOf(err)
		logging.FromContext(r.Context()).WithError(err).WithField("code", code).Warn("github oauth callback failed")
		http.Redirect(w, r, s.auth.FailureRedirect(code), http.StatusFound)
		return
	}
	http.Redirect(w, r, s.auth.SuccessRedirect(res), http.StatusFound)
}

func (s *Server) secureCookies(r *http.Request) bool {
	return r.TLS != nil || strings.HasPrefix(s.cfg.BackendURL(), "https://")
}

// clearSession removes the caller's session if it has one. It succeeds
// whether or not a session existed.
func (s *Server) clearSession(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		removed, err := s.sessions.Delete(r.Context(), token)
		if err != nil {
			logging.FromContext(r.Context()).WithError(err).Error("session delete failed")
			writeError(w, http.StatusInternalServerError, "Failed to clear session")
			return
		}
		if removed {
			logging.FromContext(r.Context()).Info("session cleared for re-authentication")
		}
	}
	writeJSON(w, http.StatusOK, messageRsp{
		Success: true,
		Message: "Session cleared. Please re-authenticate to get updated permissions.",
	})
}

func (s *Server) validateToken(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	login, err := s.gh.ValidateToken(r.Context(), sess.Token())
	if err != nil {
		status := gateway.StatusCode(err)
		if status == 0 {
			status = http.StatusInternalServerError
		}
		rsp := validateRsp{
			Error:      "Token validation failed",
			Suggestion: "Please re-authenticate to get proper permissions",
		}
		var ue *gateway.UpstreamError
		if errors.As(err, &ue) && ue.StatusCode != 0 && ue.Message != "" {
			rsp.Error = ue.Message
		}
		logging.FromContext(r.Context()).WithError(err).WithFields(logrus.Fields{"status": status}).Warn("token validation failed")
		writeJSON(w, status, rsp)
		return
	}
	writeJSON(w, http.StatusOK, validateRsp{
		Success:         true,
		TokenValid:      true,
		User:            login,
		ScopesAvailable: true,
		Message:         "Token is valid and has repository access",
	})
}
