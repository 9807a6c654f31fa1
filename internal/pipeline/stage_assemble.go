package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Raydrick/docship/internal/config"
	"github.com/Raydrick/docship/internal/logfields"
	"github.com/Raydrick/docship/internal/site"
)

// NewAssembleStage copies the changelog into the docs source tree, runs the
// configured generator (external command or builtin renderer), and
// fingerprints the rendered artifact for deploy no-op detection.
func NewAssembleStage() Stage {
	return func(ctx context.Context, rs *RunState) error {
		docsDir := filepath.Join(rs.SourceDir, rs.Config.Docs.SourceDir)
		if _, err := os.Stat(docsDir); err != nil {
			return NewFatalStageError(StageAssemble, fmt.Errorf("docs source dir: %w", err))
		}

		if src := rs.Config.Docs.Changelog.Source; src != "" {
			dst := filepath.Join(docsDir, rs.Config.Docs.Changelog.Destination)
			if err := copyChangelog(filepath.Join(rs.SourceDir, src), dst); err != nil {
				return NewFatalStageError(StageAssemble, err)
			}
			rs.Logger.Debug("changelog copied into docs tree", logfields.Path(dst))
		}

		if err := os.MkdirAll(rs.SiteDir, 0o755); err != nil {
			return NewFatalStageError(StageAssemble, fmt.Errorf("create site dir: %w", err))
		}

		gen := rs.Config.Docs.Generator
		switch gen.Kind {
		case config.GeneratorExternal:
			if err := rs.Runner.RunGenerator(ctx, gen.Command, gen.Args, rs.SiteDir); err != nil {
				return NewFatalStageError(StageAssemble, err)
			}
		default:
			stats, err := site.NewRenderer(gen.Title).Render(docsDir, rs.SiteDir)
			if err != nil {
				return NewFatalStageError(StageAssemble, err)
			}
			rs.Logger.Debug("builtin renderer finished",
				"pages", stats.Pages, "assets", stats.Assets)
		}

		artifact, err := site.NewArtifact(rs.SiteDir)
		if err != nil {
			return NewFatalStageError(StageAssemble, err)
		}
		rs.Artifact = artifact

		srcHash, err := site.SourceFingerprint(docsDir)
		if err != nil {
			return NewFatalStageError(StageAssemble, err)
		}
		rs.Report.SourceHash = srcHash

		hash, err := artifact.Fingerprint()
		if err != nil {
			return NewFatalStageError(StageAssemble, err)
		}
		rs.ArtifactHash = hash
		rs.Report.ArtifactHash = hash
		return nil
	}
}

// copyChangelog copies the changelog file verbatim; a missing source is fatal
// since the configuration explicitly asked for it.
func copyChangelog(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("changelog source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("changelog destination: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy changelog: %w", err)
	}
	return out.Sync()
}
