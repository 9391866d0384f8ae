package commit

import (
	"context"
	"encoding/base64"

	"github.com/google/go-github/v74/github"
	"github.com/sirupsen/logrus"
)

type Stage string

const (
	StageRepository Stage = "repository"
	StageRef        Stage = "ref"
	StageBaseCommit Stage = "base_commit"
	StageBlob       Stage = "blob"
	StageTree       Stage = "tree"
	StageCommit     Stage = "commit"
	StageUpdateRef  Stage = "update_ref"
)

type pipeline struct {
	gh    *github.Client
	owner string
	repo  string
	log   *logrus.Entry
}

func (p *pipeline) done(stage Stage, sha string) {
	p.log.WithFields(logrus.Fields{"stage": stage, "sha": sha}).Debug("commit stage complete")
}

func (p *pipeline) defaultBranch(ctx context.Context) (string, error) {
	repo, resp, err := p.gh.Repositories.Get(ctx, p.owner, p.repo)
	if err != nil {
		return "", newError(StageRepository, resp, err)
	}
	p.done(StageRepository, repo.GetDefaultBranch())
	return repo.GetDefaultBranch(), nil
}

func (p *pipeline) headCommit(ctx context.Context, branch string) (string, error) {
	ref, resp, err := p.gh.Git.GetRef(ctx, p.owner, p.repo, "heads/"+branch)
	if err != nil {
		return "", newError(StageRef, resp, err)
	}
	sha := ref.GetObject().GetSHA()
	p.done(StageRef, sha)
	return sha, nil
}

func (p *pipeline) baseTree(ctx context.Context, head string) (string, error) {
	c, resp, err := p.gh.Git.GetCommit(ctx, p.owner, p.repo, head)
	if err != nil {
		return "", newError(StageBaseCommit, resp, err)
	}
	sha := c.GetTree().GetSHA()
	p.done(StageBaseCommit, sha)
	return sha, nil
}

func (p *pipeline) createBlob(ctx context.Context, content string) (string, error) {
	blob, resp, err := p.gh.Git.CreateBlob(ctx, p.owner, p.repo, &github.Blob{
		Content:  github.Ptr(base64.StdEncoding.EncodeToString([]byte(content))),
		Encoding: github.Ptr("base64"),
	})
	if err != nil {
		return "", newError(StageBlob, resp, err)
	}
	p.done(StageBlob, blob.GetSHA())
	return blob.GetSHA(), nil
}

func (p *pipeline) createTree(ctx context.Context, baseTree, path, blob string) (string, error) {
	tree, resp, err := p.gh.Git.CreateTree(ctx, p.owner, p.repo, baseTree, []*github.TreeEntry{{
		Path: github.Ptr(path),
		Mode: github.Ptr(fileMode),
		Type: github.Ptr(entryType),
		SHA:  github.Ptr(blob),
	}})
	if err != nil {
		return "", newError(StageTree, resp, err)
	}
	p.done(StageTree, tree.GetSHA())
	return tree.GetSHA(), nil
}

func (p *pipeline) createCommit(ctx context.Context, message, tree, parent string) (*github.Commit, error) {
	c, resp, err := p.gh.Git.CreateCommit(ctx, p.owner, p.repo, &github.Commit{
		Message: github.Ptr(message),
		Tree:    &github.Tree{SHA: github.Ptr(tree)},
		Parents: []*github.Commit{{SHA: github.Ptr(parent)}},
	}, nil)
	if err != nil {
		return nil, newError(StageCommit, resp, err)
	}
	p.done(StageCommit, c.GetSHA())
	return c, nil
}

// updateRef moves the branch without force, so only fast-forwards succeed.
func (p *pipeline) updateRef(ctx context.Context, branch, sha string) error {
	_, resp, err := p.gh.Git.UpdateRef(ctx, p.owner, p.repo, &github.Reference{
		Ref:    github.Ptr("heads/" + branch),
		Object: &github.GitObject{SHA: github.Ptr(sha)},
	}, false)
	if err != nil {
		return newError(StageUpdateRef, resp, err)
	}
	p.done(StageUpdateRef, sha)
	return nil
}
