package pipeline

import (
	"log/slog"

	"github.com/Raydrick/docship/internal/config"
	"github.com/Raydrick/docship/internal/metrics"
	"github.com/Raydrick/docship/internal/site"
	"github.com/Raydrick/docship/internal/toolchain"
	"github.com/Raydrick/docship/internal/trigger"
)

// RunState carries the mutable state of a single matrix entry run. Stages
// read from it and write their products (artifact, hash, deploy result)
// back into it for later stages and the final report.
type RunState struct {
	Config  *config.Config
	Entry   config.MatrixEntry
	Trigger *trigger.Context

	// Interp is the resolved interpreter for this entry's matrix version.
	Interp *toolchain.Interpreter
	Runner *toolchain.Runner

	// SourceDir is the entry's isolated copy of the repository.
	SourceDir string
	// SiteDir is where the assembled site is written.
	SiteDir string
	// ScratchDir holds per-entry temporary state such as deploy clones.
	ScratchDir string

	Artifact     *site.Artifact
	ArtifactHash string

	// Primary is true for the first matrix entry; only the primary entry
	// attempts deployment so concurrent entries never race on the remote.
	Primary bool
	DryRun  bool

	Report   *RunReport
	Recorder metrics.Recorder
	Logger   *slog.Logger
}
