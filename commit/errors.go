package commit

import (
	"fmt"
	"net/http"

	"github.com/google/go-github/v74/github"

	gateway "github.com/Sajithrajan03/GreenSquares/github"
)

type Reason string

const (
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonNotFound         Reason = "not_found"
	ReasonConflict         Reason = "conflict"
	ReasonInvalidPayload   Reason = "invalid_payload"
	ReasonFailed           Reason = "failed"
)

var reasonMessages = map[Reason]string{
	ReasonPermissionDenied: "Permission denied. Please ensure the OAuth app has write access to this repository.",
	ReasonNotFound:         "Repository not found or not accessible.",
	ReasonConflict:         "Conflict occurred while creating commit. Repository may be in an inconsistent state.",
	ReasonInvalidPayload:   "Invalid data provided for commit creation.",
	ReasonFailed:           "Failed to create commit",
}

// ReasonFor maps an upstream status code to a user-facing reason.
func ReasonFor(status int) Reason {
	switch status {
	case http.StatusForbidden:
		return ReasonPermissionDenied
	case http.StatusNotFound:
		return ReasonNotFound
	case http.StatusConflict:
		return ReasonConflict
	case http.StatusUnprocessableEntity:
		return ReasonInvalidPayload
	}
	return ReasonFailed
}

// Error reports which stage failed and why. The upstream fields are GitHub's
// own status, message and documentation link.
type Error struct {
	Stage  Stage
	Reason Reason
	*gateway.UpstreamError
}

func newError(stage Stage, resp *github.Response, err error) *Error {
	ue := gateway.Upstream(resp, err).(*gateway.UpstreamError)
	return &Error{
		Stage:         stage,
		Reason:        ReasonFor(ue.StatusCode),
		UpstreamError: ue,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("commit %s stage: %s", e.Stage, e.UpstreamError.Error())
}

func (e *Error) Unwrap() error {
	return e.UpstreamError
}

// UserMessage is the fixed text shown for the reason. For unmapped statuses
// GitHub's own message is used when there is one.
func (e *Error) UserMessage() string {
	if e.Reason == ReasonFailed && e.Message != "" && e.StatusCode != 0 {
		return e.Message
	}
	return reasonMessages[e.Reason]
}

// HTTPStatus is the status to answer the client with.
func (e *Error) HTTPStatus() int {
	if e.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.StatusCode
}
