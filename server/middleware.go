package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sajithrajan03/GreenSquares/logging"
	"github.com/Sajithrajan03/GreenSquares/session"
)

const RequestIDHeader = "X-Request-ID"

type sessionContextKey struct{}

// RequestLogger tags each request with an id and a logrus entry carrying it,
// and logs the request on arrival and on completion.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := newRequestID()

		entry := logrus.WithField("request_id", requestID)
		ctx := logging.WithEntry(r.Context(), entry)
		w.Header().Set(RequestIDHeader, requestID)

		entry.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
			"proto":  r.Proto,
		}).Info("incoming request")

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			entry.WithFields(logrus.Fields{
				"status":   ww.Status(),
				"duration": fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
			}).Info("request completed")
		}()

		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}

func newRequestID() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
}

// PanicHandler turns a handler panic into the generic 500 response.
func PanicHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.FromContext(r.Context()).WithFields(logrus.Fields{
					"panic":       fmt.Sprintf("%v", rec),
					"stack_trace": string(debug.Stack()),
				}).Error("panic occurred")

				if ww.Status() == 0 {
					writeError(ww, http.StatusInternalServerError, "Something went wrong!")
				}
			}
		}()
		next.ServeHTTP(ww, r)
	})
}

// CORS admits the frontend origin with credentials.
func CORS(frontendURL string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{strings.TrimRight(frontendURL, "/")},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func sessionToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// requireSession resolves the bearer session token or answers 401.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "No session token provided")
			return
		}
		sess, found, err := s.sessions.Get(r.Context(), token)
		if err != nil {
			logging.FromContext(r.Context()).WithError(err).Error("session lookup failed")
			writeError(w, http.StatusInternalServerError, "Failed to load session")
			return
		}
		if !found {
			writeError(w, http.StatusUnauthorized, "Invalid session token")
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) session.Session {
	sess, _ := ctx.Value(sessionContextKey{}).(session.Session)
	return sess
}
