package github

import (
	"errors"
	"fmt"

	"github.com/google/go-github/v74/github"
)

// UpstreamError carries GitHub's status code, message and documentation
// link unchanged. StatusCode is zero when no response was received.
type UpstreamError struct {
	StatusCode       int
	Message          string
	DocumentationURL string
	Err              error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("github: %s", e.Message)
	}
	return fmt.Sprintf("github: %d %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Upstream converts a go-github call result into an *UpstreamError.
// It returns nil when err is nil.
func Upstream(resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}

	ue = &UpstreamError{Message: err.Error(), Err: err}
	if resp != nil && resp.Response != nil {
		ue.StatusCode = resp.StatusCode
	}

	var errResp *github.ErrorResponse
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	switch {
	case errors.As(err, &errResp):
		ue.Message = errResp.Message
		ue.DocumentationURL = errResp.DocumentationURL
		if ue.StatusCode == 0 && errResp.Response != nil {
			ue.StatusCode = errResp.Response.StatusCode
		}
	case errors.As(err, &rateErr):
		ue.Message = rateErr.Message
		if ue.StatusCode == 0 && rateErr.Response != nil {
			ue.StatusCode = rateErr.Response.StatusCode
		}
	case errors.As(err, &abuseErr):
		ue.Message = abuseErr.Message
		if ue.StatusCode == 0 && abuseErr.Response != nil {
			ue.StatusCode = abuseErr.Response.StatusCode
		}
	}
	return ue
}

// StatusCode returns the upstream status carried by err, or zero.
func StatusCode(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}
