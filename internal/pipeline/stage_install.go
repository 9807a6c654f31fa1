package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Raydrick/docship/internal/logfields"
)

// NewInstallStage installs every configured dependency manifest in declared
// order. A configured manifest missing from the source tree aborts the entry,
// as does an installer failure.
func NewInstallStage() Stage {
	return func(ctx context.Context, rs *RunState) error {
		manifests := rs.Config.Install.Manifests
		if len(manifests) == 0 {
			return fmt.Errorf("%w: no dependency manifests configured", ErrStageSkipped)
		}

		for _, manifest := range manifests {
			if _, err := os.Stat(filepath.Join(rs.SourceDir, manifest)); err != nil {
				return NewFatalStageError(StageInstall,
					fmt.Errorf("dependency manifest %s: %w", manifest, err))
			}
			if err := rs.Runner.InstallManifest(ctx, rs.Interp, manifest); err != nil {
				return NewFatalStageError(StageInstall, err)
			}
			rs.Logger.Info("installed dependency manifest", logfields.Path(manifest))
		}
		return nil
	}
}
