package github

import (
	"net/http"
	"net/url"

	"github.com/google/go-github/v74/github"
)

type Client struct {
	baseURL       *url.URL
	http          *http.Client
	eventsPerPage int
	reposPerPage  int
}

// Profile is the stable subset of the authenticated user's profile.
type Profile struct {
	Login       string            `json:"login"`
	Name        *string           `json:"name"`
	AvatarURL   string            `json:"avatar_url"`
	PublicRepos int               `json:"public_repos"`
	Followers   int               `json:"followers"`
	Following   int               `json:"following"`
	CreatedAt   *github.Timestamp `json:"created_at"`
	Bio         *string           `json:"bio"`
	Location    *string           `json:"location"`
	Company     *string           `json:"company"`
	Blog        *string           `json:"blog"`
}

// PublicProfile is the subset exposed for arbitrary usernames.
type PublicProfile struct {
	Login       string            `json:"login"`
	Name        *string           `json:"name"`
	AvatarURL   string            `json:"avatar_url"`
	PublicRepos int               `json:"public_repos"`
	Followers   int               `json:"followers"`
	Following   int               `json:"following"`
	CreatedAt   *github.Timestamp `json:"created_at"`
}

type Repository struct {
	ID              int64             `json:"id"`
	Name            string            `json:"name"`
	FullName        string            `json:"full_name"`
	Description     *string           `json:"description"`
	Private         bool              `json:"private"`
	Language        *string           `json:"language"`
	StargazersCount int               `json:"stargazers_count"`
	ForksCount      int               `json:"forks_count"`
	UpdatedAt       *github.Timestamp `json:"updated_at"`
	HTMLURL         string            `json:"html_url"`
	DefaultBranch   string            `json:"default_branch"`
}

func NewProfile(u *github.User) Profile {
	return Profile{
		Login:       u.GetLogin(),
		Name:        u.Name,
		AvatarURL:   u.GetAvatarURL(),
		PublicRepos: u.GetPublicRepos(),
		Followers:   u.GetFollowers(),
		Following:   u.GetFollowing(),
		CreatedAt:   u.CreatedAt,
		Bio:         u.Bio,
		Location:    u.Location,
		Company:     u.Company,
		Blog:        u.Blog,
	}
}

func NewPublicProfile(u *github.User) PublicProfile {
	return PublicProfile{
		Login:       u.GetLogin(),
		Name:        u.Name,
		AvatarURL:   u.GetAvatarURL(),
		PublicRepos: u.GetPublicRepos(),
		Followers:   u.GetFollowers(),
		Following:   u.GetFollowing(),
		CreatedAt:   u.CreatedAt,
	}
}

func NewRepository(r *github.Repository) Repository {
	return Repository{
		ID:              r.GetID(),
		Name:            r.GetName(),
		FullName:        r.GetFullName(),
		Description:     r.Description,
		Private:         r.GetPrivate(),
		Language:        r.Language,
		StargazersCount: r.GetStargazersCount(),
		ForksCount:      r.GetForksCount(),
		UpdatedAt:       r.UpdatedAt,
		HTMLURL:         r.GetHTMLURL(),
		DefaultBranch:   r.GetDefaultBranch(),
	}
}
