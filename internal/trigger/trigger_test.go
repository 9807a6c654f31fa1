package trigger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func clearCIEnv(t *testing.T) {
	t.Helper()
	for _, pair := range ciEnvPairs {
		t.Setenv(pair.branch, "")
		t.Setenv(pair.commit, "")
		require.NoError(t, os.Unsetenv(pair.branch))
		require.NoError(t, os.Unsetenv(pair.commit))
	}
}

func TestResolveFlagWinsOverEnv(t *testing.T) {
	clearCIEnv(t)
	t.Setenv("GITHUB_REF_NAME", "develop")

	ctx, err := Resolve("master", "abc123", "")
	require.NoError(t, err)
	require.Equal(t, "master", ctx.Branch)
	require.Equal(t, "abc123", ctx.Commit)
	require.Equal(t, "flag", ctx.Source)
}

func TestResolveFromEnv(t *testing.T) {
	clearCIEnv(t)
	t.Setenv("TRAVIS_BRANCH", "master")
	t.Setenv("TRAVIS_COMMIT", "deadbeefcafe")

	ctx, err := Resolve("", "", "")
	require.NoError(t, err)
	require.Equal(t, "master", ctx.Branch)
	require.Equal(t, "deadbeefcafe", ctx.Commit)
	require.Equal(t, "env", ctx.Source)
}

func TestResolveFromGitHead(t *testing.T) {
	clearCIEnv(t)
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	ctx, err := Resolve("", "", dir)
	require.NoError(t, err)
	require.Equal(t, "git", ctx.Source)
	require.Equal(t, hash.String(), ctx.Commit)
	require.NotEmpty(t, ctx.Branch)
}

func TestResolveFailsOutsideRepo(t *testing.T) {
	clearCIEnv(t)
	_, err := Resolve("", "", t.TempDir())
	require.ErrorIs(t, err, ErrNoBranch)
}

func TestShouldDeployExactEquality(t *testing.T) {
	cases := []struct {
		branch  string
		release string
		want    bool
	}{
		{"master", "master", true},
		{"Master", "master", false},
		{"master ", "master", false},
		{"main", "master", false},
		{"", "master", false},
	}
	for _, tc := range cases {
		ctx := &Context{Branch: tc.branch}
		require.Equal(t, tc.want, ctx.ShouldDeploy(tc.release), "branch=%q", tc.branch)
	}

	var nilCtx *Context
	require.False(t, nilCtx.ShouldDeploy("master"))
}

func TestShortCommit(t *testing.T) {
	ctx := &Context{Commit: "0123456789abcdef"}
	require.Equal(t, "01234567", ctx.ShortCommit())
	require.Equal(t, "abc", (&Context{Commit: "abc"}).ShortCommit())
}
