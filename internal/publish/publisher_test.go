package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	appcfg "github.com/Raydrick/docship/internal/config"
	"github.com/Raydrick/docship/internal/site"
)

func newBareRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

func writeArtifact(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func newPublisher(t *testing.T, remote string, keepHistory bool) *Publisher {
	t.Helper()
	return New(Options{
		RemoteURL:   remote,
		Branch:      "gh-pages",
		KeepHistory: keepHistory,
		Auth:        appcfg.AuthConfig{Type: appcfg.AuthTypeNone},
		Committer:   appcfg.Committer{Name: "docship", Email: "docship@localhost"},
	}, t.TempDir())
}

func branchCommitCount(t *testing.T, remote, branch string) int {
	t.Helper()
	repo, err := git.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err)
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	require.NoError(t, err)
	count := 0
	require.NoError(t, iter.ForEach(func(*object.Commit) error { count++; return nil }))
	return count
}

func TestPublishBootstrapsMissingBranch(t *testing.T) {
	remote := newBareRemote(t)
	artifact := writeArtifact(t, map[string]string{
		"index.html": "<html>v1</html>",
		"CNAME":      "docs.nabbot.xyz",
	})

	p := newPublisher(t, remote, true)
	res, err := p.Publish(context.Background(), artifact, "hash-v1", "deploy v1")
	require.NoError(t, err)
	require.False(t, res.NoOp)
	require.NotEmpty(t, res.Commit)

	require.Equal(t, 1, branchCommitCount(t, remote, "gh-pages"))
}

func TestPublishPreservesHistory(t *testing.T) {
	remote := newBareRemote(t)
	p := newPublisher(t, remote, true)

	v1 := writeArtifact(t, map[string]string{"index.html": "v1"})
	_, err := p.Publish(context.Background(), v1, "hash-v1", "deploy v1")
	require.NoError(t, err)

	v2 := writeArtifact(t, map[string]string{"index.html": "v2"})
	res, err := p.Publish(context.Background(), v2, "hash-v2", "deploy v2")
	require.NoError(t, err)
	require.False(t, res.NoOp)

	// The second deployment is a child commit, not a rewrite.
	require.Equal(t, 2, branchCommitCount(t, remote, "gh-pages"))
}

func TestPublishNoOpOnUnchangedArtifact(t *testing.T) {
	remote := newBareRemote(t)
	p := newPublisher(t, remote, true)

	artifact := writeArtifact(t, map[string]string{"index.html": "v1"})
	_, err := p.Publish(context.Background(), artifact, "hash-v1", "deploy v1")
	require.NoError(t, err)

	res, err := p.Publish(context.Background(), artifact, "hash-v1", "deploy v1 again")
	require.NoError(t, err)
	require.True(t, res.NoOp)
	require.Empty(t, res.Commit)

	require.Equal(t, 1, branchCommitCount(t, remote, "gh-pages"))
}

func TestPublishDeploysAssetOnlyChange(t *testing.T) {
	remote := newBareRemote(t)
	p := newPublisher(t, remote, true)

	dir := writeArtifact(t, map[string]string{
		"index.html": "<html>v1</html>",
		"style.css":  "body { margin: 0 }",
	})
	artifact, err := site.NewArtifact(dir)
	require.NoError(t, err)
	hash, err := artifact.Fingerprint()
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), dir, hash, "deploy v1")
	require.NoError(t, err)

	// Only the stylesheet changes between deployments.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "style.css"), []byte("body { margin: 1em }"), 0o644))
	hash2, err := artifact.Fingerprint()
	require.NoError(t, err)
	require.NotEqual(t, hash, hash2)

	res, err := p.Publish(context.Background(), dir, hash2, "deploy v2")
	require.NoError(t, err)
	require.False(t, res.NoOp, "changed artifact must be deployed")
	require.Equal(t, 2, branchCommitCount(t, remote, "gh-pages"))
}

func TestPublishReplacesRemovedFiles(t *testing.T) {
	remote := newBareRemote(t)
	p := newPublisher(t, remote, true)

	v1 := writeArtifact(t, map[string]string{"index.html": "v1", "old.html": "old"})
	_, err := p.Publish(context.Background(), v1, "hash-v1", "deploy v1")
	require.NoError(t, err)

	v2 := writeArtifact(t, map[string]string{"index.html": "v2"})
	_, err = p.Publish(context.Background(), v2, "hash-v2", "deploy v2")
	require.NoError(t, err)

	// Clone the pages branch and assert old.html is gone.
	checkout := t.TempDir()
	_, err = git.PlainClone(checkout, false, &git.CloneOptions{
		URL:           remote,
		ReferenceName: plumbing.NewBranchReferenceName("gh-pages"),
		SingleBranch:  true,
	})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(checkout, "index.html"))
	require.NoFileExists(t, filepath.Join(checkout, "old.html"))
}

func TestResolveAuthToken(t *testing.T) {
	t.Setenv("DOCSHIP_TEST_TOKEN", "s3cret")
	auth, err := ResolveAuth(appcfg.AuthConfig{Type: appcfg.AuthTypeToken, TokenEnv: "DOCSHIP_TEST_TOKEN"})
	require.NoError(t, err)
	require.NotNil(t, auth)
}

func TestResolveAuthTokenFileFallback(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("file-token\n"), 0o600))

	auth, err := ResolveAuth(appcfg.AuthConfig{
		Type:      appcfg.AuthTypeToken,
		TokenEnv:  "DOCSHIP_UNSET_TOKEN_VAR",
		TokenFile: tokenFile,
	})
	require.NoError(t, err)
	require.NotNil(t, auth)
}

func TestResolveAuthMissingToken(t *testing.T) {
	_, err := ResolveAuth(appcfg.AuthConfig{Type: appcfg.AuthTypeToken, TokenEnv: "DOCSHIP_UNSET_TOKEN_VAR"})
	require.ErrorIs(t, err, ErrNoToken)
}

func TestResolveAuthNone(t *testing.T) {
	auth, err := ResolveAuth(appcfg.AuthConfig{Type: appcfg.AuthTypeNone})
	require.NoError(t, err)
	require.Nil(t, auth)
}
