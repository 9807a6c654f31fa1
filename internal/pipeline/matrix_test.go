package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/Raydrick/docship/internal/config"
	"github.com/Raydrick/docship/internal/metrics"
	"github.com/Raydrick/docship/internal/trigger"
	"github.com/Raydrick/docship/internal/workspace"
)

// siteOnly keeps the stages that need no interpreter invocation, so matrix
// tests run without a real language runtime installed.
var siteOnly = []StageName{StageAssemble, StageStamp, StageLinkcheck, StageDeploy}

func matrixConfig(remote string) *config.Config {
	return &config.Config{
		Matrix:  []config.MatrixEntry{{Version: "3.6"}},
		Runtime: config.RuntimeConfig{Interpreter: "sh"},
		Docs: config.DocsConfig{
			SourceDir: "docs",
			OutputDir: "site",
			Generator: config.GeneratorConfig{Kind: config.GeneratorBuiltin, Title: "Docs"},
		},
		Site: config.SiteConfig{Domain: "docs.nabbot.xyz"},
		Deploy: config.DeployConfig{
			ReleaseBranch: "master",
			TargetBranch:  "gh-pages",
			RemoteURL:     remote,
			Auth:          config.AuthConfig{Type: config.AuthTypeNone},
			Committer:     config.Committer{Name: "docship", Email: "docship@localhost"},
		},
	}
}

func writeSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "docs", "index.md"), []byte("# Home\n\nWelcome.\n"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "docs", "guide.md"), []byte("# Guide\n\nSteps.\n"), 0o644))
	return dir
}

func newWorkspace(t *testing.T) *workspace.Manager {
	t.Helper()
	ws := workspace.NewManager(t.TempDir())
	require.NoError(t, ws.Create())
	return ws
}

func runTestMatrix(t *testing.T, cfg *config.Config, trig *trigger.Context, ws *workspace.Manager) *MatrixResult {
	t.Helper()
	result, err := RunMatrix(context.Background(), MatrixOptions{
		Config:    cfg,
		Trigger:   trig,
		SourceDir: writeSource(t),
		Workspace: ws,
		Recorder:  metrics.NoopRecorder{},
		Logger:    testLogger(),
		Only:      siteOnly,
	})
	require.NoError(t, err)
	return result
}

func TestMatrixDeploySkippedOffReleaseBranch(t *testing.T) {
	remote := t.TempDir()
	_, err := git.PlainInit(remote, true)
	require.NoError(t, err)

	ws := newWorkspace(t)
	trig := &trigger.Context{Branch: "feature/foo", Commit: "abc123def456", Source: "flag"}
	result := runTestMatrix(t, matrixConfig(remote), trig, ws)

	require.False(t, result.Failed())
	require.Len(t, result.Results, 1)
	report := result.Results[0].Report
	require.Equal(t, StageResultSkipped, report.StageResults[StageDeploy])
	require.False(t, report.Deployed)
	require.NotEmpty(t, report.DeploySkipped)

	// The pages branch was never created on the remote.
	repo, err := git.PlainOpen(remote)
	require.NoError(t, err)
	_, err = repo.Reference(plumbing.NewBranchReferenceName("gh-pages"), true)
	require.Error(t, err)
}

func TestMatrixDeploysOnReleaseBranch(t *testing.T) {
	remote := t.TempDir()
	_, err := git.PlainInit(remote, true)
	require.NoError(t, err)

	ws := newWorkspace(t)
	trig := &trigger.Context{Branch: "master", Commit: "abc123def456", Source: "flag"}
	result := runTestMatrix(t, matrixConfig(remote), trig, ws)

	require.False(t, result.Failed())
	report := result.Results[0].Report
	require.Equal(t, StageResultSuccess, report.StageResults[StageDeploy])
	require.True(t, report.Deployed)
	require.NotEmpty(t, report.DeployCommit)

	repo, err := git.PlainOpen(remote)
	require.NoError(t, err)
	_, err = repo.Reference(plumbing.NewBranchReferenceName("gh-pages"), true)
	require.NoError(t, err)
}

func TestMatrixStampsArtifactDomain(t *testing.T) {
	remote := t.TempDir()
	_, err := git.PlainInit(remote, true)
	require.NoError(t, err)

	ws := newWorkspace(t)
	trig := &trigger.Context{Branch: "develop", Source: "flag"}
	result := runTestMatrix(t, matrixConfig(remote), trig, ws)
	require.False(t, result.Failed())

	cname := filepath.Join(ws.GetPath(), "entry-3.6", "site", "CNAME")
	data, err := os.ReadFile(cname)
	require.NoError(t, err)
	require.Equal(t, "docs.nabbot.xyz", string(data))
}

func TestMatrixPersistsRunReports(t *testing.T) {
	remote := t.TempDir()
	_, err := git.PlainInit(remote, true)
	require.NoError(t, err)

	ws := newWorkspace(t)
	trig := &trigger.Context{Branch: "develop", Source: "flag"}
	result := runTestMatrix(t, matrixConfig(remote), trig, ws)
	require.False(t, result.Failed())

	for _, name := range []string{"run-report.json", "run-report.txt"} {
		_, err := os.Stat(filepath.Join(ws.GetPath(), "entry-3.6", name))
		require.NoError(t, err)
	}
}

func TestMatrixAllowFailureDemotesEntry(t *testing.T) {
	cfg := matrixConfig(t.TempDir())
	// An unresolvable interpreter fails the entry before any stage runs.
	cfg.Runtime.Interpreter = "no-such-interpreter-{version}"
	cfg.Matrix = []config.MatrixEntry{{Version: "3.7-dev", AllowFailure: true}}

	ws := newWorkspace(t)
	result, err := RunMatrix(context.Background(), MatrixOptions{
		Config:    cfg,
		Trigger:   &trigger.Context{Branch: "develop", Source: "flag"},
		SourceDir: writeSource(t),
		Workspace: ws,
		Recorder:  metrics.NoopRecorder{},
		Logger:    testLogger(),
	})
	require.NoError(t, err)

	require.False(t, result.Failed(), "allow_failure entry must not fail the run")
	require.True(t, result.Results[0].Demoted)
	require.Error(t, result.Results[0].Err)
	require.Equal(t, OutcomeWarning, result.Outcome())
}

func TestMatrixUnflaggedFailureFailsRun(t *testing.T) {
	cfg := matrixConfig(t.TempDir())
	cfg.Runtime.Interpreter = "no-such-interpreter-{version}"
	cfg.Matrix = []config.MatrixEntry{
		{Version: "3.6"},
		{Version: "3.7-dev", AllowFailure: true},
	}

	ws := newWorkspace(t)
	result, err := RunMatrix(context.Background(), MatrixOptions{
		Config:    cfg,
		Trigger:   &trigger.Context{Branch: "develop", Source: "flag"},
		SourceDir: writeSource(t),
		Workspace: ws,
		Recorder:  metrics.NoopRecorder{},
		Logger:    testLogger(),
	})
	require.NoError(t, err)

	require.True(t, result.Failed())
	require.Equal(t, "3.6", result.Results[0].Entry.Version)
	require.False(t, result.Results[0].Demoted)
	require.True(t, result.Results[1].Demoted)
	require.Equal(t, OutcomeFailed, result.Outcome())
}
