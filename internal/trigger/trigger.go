package trigger

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
)

// ErrNoBranch indicates the triggering branch could not be determined.
var ErrNoBranch = errors.New("trigger: branch could not be resolved")

// Context describes the source-control event a run responds to.
type Context struct {
	Branch string
	Commit string
	Source string // how the context was resolved: flag | env | git
}

// ciEnvPair maps a CI provider's branch/commit environment variables.
type ciEnvPair struct {
	branch string
	commit string
}

var ciEnvPairs = []ciEnvPair{
	{"DOCSHIP_BRANCH", "DOCSHIP_COMMIT"},
	{"GITHUB_REF_NAME", "GITHUB_SHA"},
	{"CI_COMMIT_BRANCH", "CI_COMMIT_SHA"},
	{"TRAVIS_BRANCH", "TRAVIS_COMMIT"},
}

// Resolve determines the triggering branch and commit for a run.
// Priority: explicit flag values, CI environment variables, then the
// HEAD of the git checkout at repoPath.
func Resolve(flagBranch, flagCommit, repoPath string) (*Context, error) {
	if flagBranch != "" {
		return &Context{Branch: flagBranch, Commit: flagCommit, Source: "flag"}, nil
	}

	for _, pair := range ciEnvPairs {
		if branch := os.Getenv(pair.branch); branch != "" {
			return &Context{Branch: branch, Commit: os.Getenv(pair.commit), Source: "env"}, nil
		}
	}

	ctx, err := resolveFromGit(repoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBranch, err)
	}
	return ctx, nil
}

// resolveFromGit reads HEAD of the checkout at repoPath.
func resolveFromGit(repoPath string) (*Context, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", repoPath, err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("read HEAD: %w", err)
	}
	ctx := &Context{Commit: head.Hash().String(), Source: "git"}
	if head.Name().IsBranch() {
		ctx.Branch = head.Name().Short()
	}
	if ctx.Branch == "" {
		return nil, errors.New("detached HEAD has no branch")
	}
	return ctx, nil
}

// ShouldDeploy reports whether the deployment stage may run. The comparison is
// exact string equality with the configured release branch; anything else skips.
func (c *Context) ShouldDeploy(releaseBranch string) bool {
	if c == nil {
		return false
	}
	return c.Branch == releaseBranch
}

// ShortCommit returns an abbreviated commit hash for log lines.
func (c *Context) ShortCommit() string {
	if len(c.Commit) >= 8 {
		return c.Commit[:8]
	}
	return c.Commit
}
