package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	gateway "github.com/Sajithrajan03/GreenSquares/github"
	"github.com/Sajithrajan03/GreenSquares/logging"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeUpstreamError answers with GitHub's status and a fixed message, with
// GitHub's own message in details. Without an upstream response it is a 500.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := http.StatusInternalServerError
	rsp := errorResponse{Error: message}

	var ue *gateway.UpstreamError
	if errors.As(err, &ue) {
		if ue.StatusCode != 0 {
			status = ue.StatusCode
		}
		rsp.Details = ue.Message
	}

	logging.FromContext(r.Context()).WithError(err).WithField("status", status).Error(message)
	writeJSON(w, status, rsp)
}
