package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/Raydrick/docship/internal/linkcheck"
)

// NewLinkcheckStage scans the assembled site for broken internal links.
// Findings demote the entry to a warning but never fail it; a scan that
// cannot run at all is fatal.
func NewLinkcheckStage() Stage {
	return func(ctx context.Context, rs *RunState) error {
		if rs.Artifact == nil {
			return NewFatalStageError(StageLinkcheck, fmt.Errorf("no artifact to check"))
		}
		issues, err := linkcheck.CheckDir(rs.Artifact.Dir)
		if err != nil {
			return NewFatalStageError(StageLinkcheck, err)
		}
		if len(issues) == 0 {
			return nil
		}
		msgs := make([]string, len(issues))
		for i, is := range issues {
			msgs[i] = is.String()
		}
		return NewWarnStageError(StageLinkcheck,
			fmt.Errorf("%d broken links: %s", len(issues), strings.Join(msgs, "; ")))
	}
}
