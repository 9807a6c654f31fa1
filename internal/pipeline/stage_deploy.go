package pipeline

import (
	"context"
	"fmt"

	"github.com/Raydrick/docship/internal/logfields"
	"github.com/Raydrick/docship/internal/publish"
)

// NewDeployStage publishes the artifact to the pages branch. It runs only
// when the triggering branch exactly equals the release branch, and only for
// the primary matrix entry so concurrent entries never race on the remote.
func NewDeployStage() Stage {
	return func(ctx context.Context, rs *RunState) error {
		release := rs.Config.Deploy.ReleaseBranch
		if !rs.Trigger.ShouldDeploy(release) {
			rs.Report.DeploySkipped = fmt.Sprintf("branch %q is not release branch %q", rs.Trigger.Branch, release)
			rs.Recorder.IncDeploy(false)
			return fmt.Errorf("%w: %s", ErrStageSkipped, rs.Report.DeploySkipped)
		}
		if !rs.Primary {
			rs.Report.DeploySkipped = "deployment handled by primary matrix entry"
			return fmt.Errorf("%w: %s", ErrStageSkipped, rs.Report.DeploySkipped)
		}
		if rs.DryRun {
			rs.Report.DeploySkipped = "dry run"
			return fmt.Errorf("%w: %s", ErrStageSkipped, rs.Report.DeploySkipped)
		}
		if rs.Artifact == nil {
			return NewFatalStageError(StageDeploy, fmt.Errorf("no artifact to deploy"))
		}
		if rs.Config.Deploy.RemoteURL == "" {
			return NewFatalStageError(StageDeploy, fmt.Errorf("deploy.remote_url not configured"))
		}

		pub := publish.New(publish.Options{
			RemoteURL:   rs.Config.Deploy.RemoteURL,
			Branch:      rs.Config.Deploy.TargetBranch,
			KeepHistory: rs.Config.Deploy.KeepHistoryEnabled(),
			Auth:        rs.Config.Deploy.Auth,
			Committer:   rs.Config.Deploy.Committer,
		}, rs.ScratchDir)

		message := fmt.Sprintf("deploy %s@%s", rs.Trigger.Branch, rs.Trigger.ShortCommit())
		res, err := pub.Publish(ctx, rs.Artifact.Dir, rs.ArtifactHash, message)
		if err != nil {
			rs.Recorder.IncDeploy(false)
			return NewFatalStageError(StageDeploy, err)
		}
		if res.NoOp {
			rs.Report.DeploySkipped = "artifact unchanged since last deployment"
			rs.Logger.Info("deployment skipped, artifact unchanged")
			return nil
		}

		rs.Report.Deployed = true
		rs.Report.DeployCommit = res.Commit
		rs.Recorder.IncDeploy(true)
		rs.Logger.Info("artifact deployed",
			logfields.Branch(rs.Config.Deploy.TargetBranch),
			logfields.Commit(res.Commit))
		return nil
	}
}
