// Package commit creates a single-file commit on a repository's default
// branch through GitHub's Git data API, without a local clone.
//
// The work is a fixed linear pipeline: each stage makes one API call and
// hands its typed result to the next stage only. A failing stage stops the
// pipeline and is reported by name. Objects created before the failure are
// left unreferenced for GitHub to garbage-collect.
//
// The branch is not locked between reading the head and moving the ref.
// The final ref update is a non-forced PATCH, so a concurrent push makes it
// fail (usually 409 or 422) instead of being overwritten.
package commit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/go-github/v74/github"
	"github.com/sirupsen/logrus"

	"github.com/Sajithrajan03/GreenSquares/logging"
)

const (
	fileMode  = "100644"
	entryType = "blob"
)

type Request struct {
	Owner   string `validate:"required"`
	Repo    string `validate:"required"`
	Message string `validate:"required"`
	Path    string `validate:"required"`
	Content string
}

type Result struct {
	SHA     string               `json:"sha"`
	Message string               `json:"message"`
	HTMLURL string               `json:"html_url"`
	Author  *github.CommitAuthor `json:"author"`

	Branch string `json:"-"`
	Parent string `json:"-"`
	Tree   string `json:"-"`
	Blob   string `json:"-"`
}

type Builder struct {
	webURL   string
	validate *validator.Validate
	now      func() time.Time
}

// NewBuilder returns a Builder. webURL is the GitHub web root used for
// commit links when the API response carries none.
func NewBuilder(webURL string) *Builder {
	if webURL == "" {
		webURL = "https://github.com"
	}
	return &Builder{
		webURL:   strings.TrimRight(webURL, "/"),
		validate: validator.New(),
		now:      time.Now,
	}
}

// Validate checks that owner, repo, message and path are present.
func (b *Builder) Validate(req Request) error {
	if err := b.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid commit request: %w", err)
	}
	return nil
}

// DefaultContent is the file body used when a request has no content.
func (b *Builder) DefaultContent(message string) string {
	return fmt.Sprintf("# Quick commit from GreenSquares\n\n%s\n\nCommitted at: %s",
		message, b.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}

// Build runs the pipeline. Failures of upstream calls are returned as *Error.
func (b *Builder) Build(ctx context.Context, gh *github.Client, req Request) (*Result, error) {
	if err := b.Validate(req); err != nil {
		return nil, err
	}
	content := req.Content
	if content == "" {
		content = b.DefaultContent(req.Message)
	}

	log := logging.FromContext(ctx).WithFields(logrus.Fields{
		"owner": req.Owner,
		"repo":  req.Repo,
		"path":  req.Path,
	})

	p := &pipeline{gh: gh, owner: req.Owner, repo: req.Repo, log: log}

	branch, err := p.defaultBranch(ctx)
	if err != nil {
		return nil, err
	}
	head, err := p.headCommit(ctx, branch)
	if err != nil {
		return nil, err
	}
	baseTree, err := p.baseTree(ctx, head)
	if err != nil {
		return nil, err
	}
	blob, err := p.createBlob(ctx, content)
	if err != nil {
		return nil, err
	}
	tree, err := p.createTree(ctx, baseTree, req.Path, blob)
	if err != nil {
		return nil, err
	}
	created, err := p.createCommit(ctx, req.Message, tree, head)
	if err != nil {
		return nil, err
	}
	if err := p.updateRef(ctx, branch, created.GetSHA()); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"branch": branch,
		"sha":    created.GetSHA(),
	}).Info("commit created")

	htmlURL := created.GetHTMLURL()
	if htmlURL == "" {
		htmlURL = fmt.Sprintf("%s/%s/%s/commit/%s", b.webURL, req.Owner, req.Repo, created.GetSHA())
	}

	return &Result{
		SHA:     created.GetSHA(),
		Message: req.Message,
		HTMLURL: htmlURL,
		Author:  created.Author,
		Branch:  branch,
		Parent:  head,
		Tree:    tree,
		Blob:    blob,
	}, nil
}
