// Package github is a thin gateway over the GitHub REST API. It authenticates
// calls with the session's OAuth token, shapes the profile endpoints into a
// stable subset of fields and hands every other payload back as GitHub sent
// it. Failures keep GitHub's status code and message (see UpstreamError).
// There is no caching and no retry.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sajithrajan03/GreenSquares/ratelimit"
	"github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://api.github.com/"

type Options struct {
	BaseURL       string
	Timeout       time.Duration
	Limiter       *ratelimit.Limiter
	Transport     http.RoundTripper
	EventsPerPage int
	ReposPerPage  int
}

func NewClient(opts Options) (*Client, error) {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("github base url: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Limiter != nil {
		transport = opts.Limiter.Transport(transport)
	}

	eventsPerPage := opts.EventsPerPage
	if eventsPerPage <= 0 {
		eventsPerPage = 30
	}
	reposPerPage := opts.ReposPerPage
	if reposPerPage <= 0 {
		reposPerPage = 50
	}

	return &Client{
		baseURL:       baseURL,
		http:          &http.Client{Transport: transport, Timeout: opts.Timeout},
		eventsPerPage: eventsPerPage,
		reposPerPage:  reposPerPage,
	}, nil
}

// HTTPClient is the shared outbound client. The OAuth exchange uses it too so
// it goes through the same timeout and throttle.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// API returns a go-github client. With a nil token the client is anonymous;
// otherwise every request carries "Authorization: <token type> <access token>".
func (c *Client) API(ctx context.Context, token *oauth2.Token) *github.Client {
	httpClient := c.http
	if token != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
		httpClient.Timeout = c.http.Timeout
	}
	gh := github.NewClient(httpClient)
	gh.BaseURL = c.baseURL
	return gh
}

func (c *Client) AuthenticatedUser(ctx context.Context, token *oauth2.Token) (*github.User, error) {
	user, resp, err := c.API(ctx, token).Users.Get(ctx, "")
	if err != nil {
		return nil, Upstream(resp, err)
	}
	return user, nil
}

func (c *Client) PublicUser(ctx context.Context, username string) (*github.User, error) {
	user, resp, err := c.API(ctx, nil).Users.Get(ctx, username)
	if err != nil {
		return nil, Upstream(resp, err)
	}
	return user, nil
}

// RecentEvents lists the events performed by login, including private ones
// the token can see. Only the first page is fetched.
func (c *Client) RecentEvents(ctx context.Context, token *oauth2.Token, login string) ([]*github.Event, error) {
	events, resp, err := c.API(ctx, token).Activity.ListEventsPerformedByUser(ctx, login, false,
		&github.ListOptions{PerPage: c.eventsPerPage})
	if err != nil {
		return nil, Upstream(resp, err)
	}
	return events, nil
}

func (c *Client) PublicEvents(ctx context.Context, username string) ([]*github.Event, error) {
	events, resp, err := c.API(ctx, nil).Activity.ListEventsPerformedByUser(ctx, username, true,
		&github.ListOptions{PerPage: c.eventsPerPage})
	if err != nil {
		return nil, Upstream(resp, err)
	}
	return events, nil
}

// ListRepositories returns the first page of the caller's repositories,
// most recently updated first.
func (c *Client) ListRepositories(ctx context.Context, token *oauth2.Token) ([]Repository, error) {
	repos, resp, err := c.API(ctx, token).Repositories.ListByAuthenticatedUser(ctx,
		&github.RepositoryListByAuthenticatedUserOptions{
			Sort:        "updated",
			ListOptions: github.ListOptions{PerPage: c.reposPerPage},
		})
	if err != nil {
		return nil, Upstream(resp, err)
	}

	out := make([]Repository, 0, len(repos))
	for _, r := range repos {
		if r == nil {
			continue
		}
		out = append(out, NewRepository(r))
	}
	return out, nil
}

// Contents proxies the contents API. The result is either a single
// *github.RepositoryContent or a directory listing.
func (c *Client) Contents(ctx context.Context, token *oauth2.Token, owner, repo, path string) (any, error) {
	file, dir, resp, err := c.API(ctx, token).Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, Upstream(resp, err)
	}
	if file != nil {
		return file, nil
	}
	return dir, nil
}

// ValidateToken probes the token with the profile endpoint and a one-item
// repository listing, and returns the login it belongs to.
func (c *Client) ValidateToken(ctx context.Context, token *oauth2.Token) (string, error) {
	api := c.API(ctx, token)

	user, resp, err := api.Users.Get(ctx, "")
	if err != nil {
		return "", Upstream(resp, err)
	}

	_, resp, err = api.Repositories.ListByAuthenticatedUser(ctx,
		&github.RepositoryListByAuthenticatedUserOptions{ListOptions: github.ListOptions{PerPage: 1}})
	if err != nil {
		return "", Upstream(resp, err)
	}

	return user.GetLogin(), nil
}
