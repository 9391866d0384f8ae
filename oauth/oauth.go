// Package oauth runs GitHub's web application flow: it issues the
// authorization redirect, verifies the returned state, exchanges the code
// for an access token and opens a session for the authenticated user.
package oauth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/Sajithrajan03/GreenSquares/cache"
	gateway "github.com/Sajithrajan03/GreenSquares/github"
	"github.com/Sajithrajan03/GreenSquares/logging"
	"github.com/Sajithrajan03/GreenSquares/session"
)

type FailureCode string

const (
	NoCode       FailureCode = "no_code"
	InvalidState FailureCode = "invalid_state"
	AuthFailed   FailureCode = "auth_failed"
)

// Failure is a callback that must not create a session. Code is what the
// frontend receives in its error query parameter.
type Failure struct {
	Code FailureCode
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("oauth callback: %s", f.Code)
	}
	return fmt.Sprintf("oauth callback: %s: %v", f.Code, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	FrontendURL  string
	StateTTL     time.Duration
	CacheSize    int
}

// Result is a completed login.
type Result struct {
	SessionToken string
	Login        string
}

type Controller struct {
	conf        *oauth2.Config
	states      *cache.Cache[struct{}]
	stateTTL    time.Duration
	sessions    session.Store
	gh          *gateway.Client
	frontendURL string
	newState    func() (string, error)
}

func NewController(opts Options, sessions session.Store, gh *gateway.Client) (*Controller, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = 1000
	}
	states, err := cache.New[struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("oauth state cache: %w", err)
	}
	ttl := opts.StateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &Controller{
		conf: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		states:      states,
		stateTTL:    ttl,
		sessions:    sessions,
		gh:          gh,
		frontendURL: strings.TrimRight(opts.FrontendURL, "/"),
		newState:    newState,
	}, nil
}

func newState() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// StateTTL is how long an issued state stays redeemable.
func (c *Controller) StateTTL() time.Duration {
	return c.stateTTL
}

// AuthorizationURL returns the provider URL to redirect the browser to and
// the fresh state it carries. The caller must bind the state to the browser
// (see Complete); the state is remembered for one callback.
func (c *Controller) AuthorizationURL(ctx context.Context) (string, string, error) {
	state, err := c.newState()
	if err != nil {
		return "", "", fmt.Errorf("generate oauth state: %w", err)
	}
	c.states.Set(state, struct{}{}, c.stateTTL)
	logging.FromContext(ctx).Debug("oauth state issued")
	return c.conf.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent")), state, nil
}

// Complete handles the provider callback. state is the value GitHub echoed
// back; bound is the value held by the browser that started the flow. Both
// must match an issued, unexpired, unused state. Every failure is a *Failure.
func (c *Controller) Complete(ctx context.Context, code, state, bound string) (*Result, error) {
	log := logging.FromContext(ctx)

	if code == "" {
		return nil, &Failure{Code: NoCode}
	}
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(bound)) != 1 {
		return nil, &Failure{Code: InvalidState, Err: errors.New("state not bound to this browser")}
	}
	if _, ok := c.states.Take(state); !ok {
		return nil, &Failure{Code: InvalidState}
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, c.gh.HTTPClient())
	tok, err := c.conf.Exchange(exchangeCtx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			log.WithField("error_code", re.ErrorCode).Warn("oauth code exchange rejected")
		}
		return nil, &Failure{Code: AuthFailed, Err: fmt.Errorf("exchange code: %w", err)}
	}

	user, err := c.gh.AuthenticatedUser(ctx, tok)
	if err != nil {
		return nil, &Failure{Code: AuthFailed, Err: fmt.Errorf("fetch user: %w", err)}
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, &Failure{Code: AuthFailed, Err: fmt.Errorf("encode user: %w", err)}
	}

	token, err := c.sessions.Create(ctx, session.Credentials{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
	}, raw)
	if err != nil {
		return nil, &Failure{Code: AuthFailed, Err: fmt.Errorf("create session: %w", err)}
	}

	log.WithFields(logrus.Fields{"login": user.GetLogin()}).Info("user authenticated")
	return &Result{SessionToken: token, Login: user.GetLogin()}, nil
}

// SuccessRedirect is the frontend dashboard URL carrying the session token.
func (c *Controller) SuccessRedirect(res *Result) string {
	q := url.Values{}
	q.Set("token", res.SessionToken)
	q.Set("user", res.Login)
	return c.frontendURL + "/dashboard?" + q.Encode()
}

func (c *Controller) FailureRedirect(code FailureCode) string {
	return c.frontendURL + "?error=" + url.QueryEscape(string(code))
}

// FailureCodeOf returns the redirect code for err. Errors that are not a
// *Failure are reported as auth_failed.
func FailureCodeOf(err error) FailureCode {
	var f *Failure
	if errors.As(err, &f) {
		return f.Code
	}
	return AuthFailed
}
