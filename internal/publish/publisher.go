package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	appcfg "github.com/Raydrick/docship/internal/config"
	"github.com/Raydrick/docship/internal/logfields"
)

// hashMarker records the artifact hash of the last deployment at the branch
// root; a matching hash turns the next publish into a recorded no-op.
const hashMarker = ".docship-hash"

// ErrPush indicates the deployment push was rejected or failed.
var ErrPush = errors.New("publish: push failed")

// Options configure a pages deployment target.
type Options struct {
	RemoteURL   string
	Branch      string // target pages branch
	KeepHistory bool
	Auth        appcfg.AuthConfig
	Committer   appcfg.Committer
}

// Result describes the outcome of one publish call.
type Result struct {
	Commit string // hash of the deployment commit (empty on no-op)
	NoOp   bool   // artifact identical to what is already deployed
}

// Publisher deploys site artifacts to a pages branch. With history enabled the
// new deployment is a child commit of the previous one; without it the branch
// is rewritten from scratch and force-pushed.
type Publisher struct {
	opts    Options
	scratch string
}

// New creates a Publisher that stages deployments under scratchDir.
func New(opts Options, scratchDir string) *Publisher {
	return &Publisher{opts: opts, scratch: scratchDir}
}

// Publish deploys the artifact tree. A failed publish leaves the previously
// deployed state live; there is no partial deployment.
func (p *Publisher) Publish(ctx context.Context, artifactDir, artifactHash, message string) (*Result, error) {
	auth, err := ResolveAuth(p.opts.Auth)
	if err != nil {
		return nil, err
	}

	checkout := filepath.Join(p.scratch, "pages-checkout")
	if err := os.RemoveAll(checkout); err != nil {
		return nil, fmt.Errorf("clear deploy checkout: %w", err)
	}

	repo, fresh, err := p.prepareBranch(ctx, checkout, auth)
	if err != nil {
		return nil, err
	}

	if !fresh && artifactHash != "" {
		if prev, err := os.ReadFile(filepath.Join(checkout, hashMarker)); err == nil && string(prev) == artifactHash {
			slog.Info("Artifact already deployed, skipping publish",
				logfields.Target(p.opts.Branch),
				slog.String("artifact_hash", artifactHash))
			return &Result{NoOp: true}, nil
		}
	}

	if err := replaceContent(checkout, artifactDir); err != nil {
		return nil, err
	}
	if artifactHash != "" {
		if err := os.WriteFile(filepath.Join(checkout, hashMarker), []byte(artifactHash), 0o644); err != nil {
			return nil, fmt.Errorf("write hash marker: %w", err)
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("stage artifact: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() && !fresh {
		return &Result{NoOp: true}, nil
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.opts.Committer.Name,
			Email: p.opts.Committer.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("commit deployment: %w", err)
	}

	refspec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", p.opts.Branch, p.opts.Branch))
	pushOpts := &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{refspec},
		Auth:       auth,
		Force:      !p.opts.KeepHistory,
	}
	if err := repo.PushContext(ctx, pushOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("%w: %w", ErrPush, err)
	}

	slog.Info("Site deployed",
		logfields.Target(p.opts.Branch),
		slog.String("commit", hash.String()[:8]),
		slog.Bool("keep_history", p.opts.KeepHistory))
	return &Result{Commit: hash.String()}, nil
}

// prepareBranch materializes the pages branch in the checkout directory.
// Returns fresh=true when the branch does not exist yet (first deployment) or
// when history preservation is disabled.
func (p *Publisher) prepareBranch(ctx context.Context, checkout string, auth transport.AuthMethod) (*git.Repository, bool, error) {
	if p.opts.KeepHistory {
		repo, err := git.PlainCloneContext(ctx, checkout, false, &git.CloneOptions{
			URL:           p.opts.RemoteURL,
			ReferenceName: plumbing.NewBranchReferenceName(p.opts.Branch),
			SingleBranch:  true,
			Auth:          auth,
		})
		if err == nil {
			return repo, false, nil
		}
		if !isMissingBranch(err) {
			return nil, false, fmt.Errorf("clone pages branch: %w", err)
		}
		// First deployment: branch (or whole remote) does not exist yet.
	}

	if err := os.RemoveAll(checkout); err != nil {
		return nil, false, fmt.Errorf("clear deploy checkout: %w", err)
	}
	repo, err := git.PlainInit(checkout, false)
	if err != nil {
		return nil, false, fmt.Errorf("init deploy checkout: %w", err)
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{p.opts.RemoteURL},
	}); err != nil {
		return nil, false, fmt.Errorf("configure deploy remote: %w", err)
	}
	// Point HEAD at the pages branch so the first commit creates it.
	headRef := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(p.opts.Branch))
	if err := repo.Storer.SetReference(headRef); err != nil {
		return nil, false, fmt.Errorf("set HEAD to pages branch: %w", err)
	}
	return repo, true, nil
}

// isMissingBranch classifies clone failures that mean "nothing deployed yet".
func isMissingBranch(err error) bool {
	return errors.Is(err, plumbing.ErrReferenceNotFound) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, git.NoMatchingRefSpecError{})
}

// replaceContent swaps the checkout's tracked content for the artifact tree,
// leaving the .git directory untouched.
func replaceContent(checkout, artifactDir string) error {
	entries, err := os.ReadDir(checkout)
	if err != nil {
		return fmt.Errorf("read deploy checkout: %w", err)
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(checkout, e.Name())); err != nil {
			return fmt.Errorf("remove previous content %s: %w", e.Name(), err)
		}
	}
	return copyTree(artifactDir, checkout)
}

// copyTree recursively copies a directory tree.
func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read artifact dir: %w", err)
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := os.MkdirAll(dstPath, 0o750); err != nil {
				return err
			}
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

// copyFile copies a single file preserving its mode.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = dstFile.Close() }()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode())
}
