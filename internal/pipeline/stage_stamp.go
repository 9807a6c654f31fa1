package pipeline

import (
	"context"
	"fmt"

	"github.com/Raydrick/docship/internal/logfields"
)

// NewStampStage writes the configured custom domain into the artifact's CNAME
// file. The file content is exactly the hostname, nothing else.
func NewStampStage() Stage {
	return func(ctx context.Context, rs *RunState) error {
		domain := rs.Config.Site.Domain
		if domain == "" {
			return fmt.Errorf("%w: no site domain configured", ErrStageSkipped)
		}
		if rs.Artifact == nil {
			return NewFatalStageError(StageStamp, fmt.Errorf("no artifact to stamp"))
		}
		if err := rs.Artifact.StampDomain(domain); err != nil {
			return NewFatalStageError(StageStamp, err)
		}
		// The stamp mutated the artifact, so the deploy fingerprint is stale.
		hash, err := rs.Artifact.Fingerprint()
		if err != nil {
			return NewFatalStageError(StageStamp, err)
		}
		rs.ArtifactHash = hash
		rs.Report.ArtifactHash = hash
		rs.Logger.Info("artifact stamped with custom domain", logfields.URL(domain))
		return nil
	}
}
