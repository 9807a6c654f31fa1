package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/Raydrick/docship/internal/config"
	"github.com/Raydrick/docship/internal/logfields"
	"github.com/Raydrick/docship/internal/metrics"
	"github.com/Raydrick/docship/internal/toolchain"
	"github.com/Raydrick/docship/internal/trigger"
	"github.com/Raydrick/docship/internal/workspace"
)

// MatrixOptions configure one matrix run over a source checkout.
type MatrixOptions struct {
	Config    *config.Config
	Trigger   *trigger.Context
	SourceDir string
	Workspace *workspace.Manager
	Recorder  metrics.Recorder
	Logger    *slog.Logger
	DryRun    bool
	// Only restricts the stage sequence to the named stages. Empty = all.
	Only []StageName
	// Version is stamped into run reports (the tool version, not a matrix version).
	Version string
}

// EntryResult is the outcome of one matrix entry.
type EntryResult struct {
	Entry  config.MatrixEntry
	Report *RunReport
	Err    error
	// Demoted is true when the entry failed but was flagged allow_failure,
	// so the failure does not count against the run.
	Demoted bool
}

// MatrixResult aggregates all entry results in matrix declaration order.
type MatrixResult struct {
	RunID      string
	ConfigHash string
	Results    []EntryResult
}

// Failed reports whether any non-demoted entry failed.
func (m *MatrixResult) Failed() bool {
	for _, r := range m.Results {
		if r.Err != nil && !r.Demoted {
			return true
		}
	}
	return false
}

// Outcome derives the aggregate verdict across all entries. Demoted entries
// count as warnings.
func (m *MatrixResult) Outcome() Outcome {
	out := OutcomeSuccess
	for _, r := range m.Results {
		var o Outcome
		switch {
		case r.Report == nil:
			o = OutcomeFailed
		case r.Demoted:
			o = OutcomeWarning
		default:
			o = r.Report.Outcome
		}
		switch o {
		case OutcomeCanceled:
			return OutcomeCanceled
		case OutcomeFailed:
			out = OutcomeFailed
		case OutcomeWarning:
			if out == OutcomeSuccess {
				out = OutcomeWarning
			}
		}
	}
	return out
}

// RunMatrix executes the stage pipeline once per matrix entry, each in an
// isolated workspace subtree, with bounded concurrency. Results are returned
// in matrix declaration order regardless of completion order.
func RunMatrix(ctx context.Context, opts MatrixOptions) (*MatrixResult, error) {
	entries := opts.Config.Matrix
	result := &MatrixResult{
		RunID:      uuid.NewString(),
		ConfigHash: opts.Config.Snapshot(),
		Results:    make([]EntryResult, len(entries)),
	}

	limit := opts.Config.Concurrency
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(idx int, entry config.MatrixEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			report, err := runEntry(ctx, opts, result.RunID, entry, idx == 0)
			res := EntryResult{Entry: entry, Report: report, Err: err}
			if err != nil && entry.AllowFailure && report.Outcome != OutcomeCanceled {
				res.Demoted = true
				opts.Logger.Warn("matrix entry failed but is allowed to fail",
					logfields.MatrixVersion(entry.Version),
					logfields.Error(err))
			}
			result.Results[idx] = res
		}(i, entry)
	}
	wg.Wait()

	return result, nil
}

// runEntry prepares an isolated workspace for one matrix entry and runs the
// stage sequence inside it.
func runEntry(ctx context.Context, opts MatrixOptions, matrixRunID string, entry config.MatrixEntry, primary bool) (*RunReport, error) {
	runID := fmt.Sprintf("%s/%s", matrixRunID, entry.Version)
	logger := opts.Logger.With(
		logfields.RunID(runID),
		logfields.MatrixVersion(entry.Version))

	report := NewRunReport(runID, entry.Version)
	report.AllowFailure = entry.AllowFailure
	report.ToolVersion = opts.Version
	report.ConfigHash = opts.Config.Snapshot()
	if opts.Trigger != nil {
		report.Branch = opts.Trigger.Branch
		report.Commit = opts.Trigger.Commit
	}

	entryDir, err := opts.Workspace.EntryDir(entry.Version)
	if err != nil {
		return failEntry(report, "", StageInstall, fmt.Errorf("entry workspace: %w", err))
	}

	srcDir := filepath.Join(entryDir, "src")
	if err := copyTree(opts.SourceDir, srcDir); err != nil {
		return failEntry(report, entryDir, StageInstall, fmt.Errorf("copy source tree: %w", err))
	}

	interp, err := toolchain.ResolveInterpreter(opts.Config.Runtime.Interpreter, entry.Version)
	if err != nil {
		return failEntry(report, entryDir, StageInstall, err)
	}

	rs := &RunState{
		Config:     opts.Config,
		Entry:      entry,
		Trigger:    opts.Trigger,
		Interp:     interp,
		Runner:     toolchain.NewRunner(srcDir),
		SourceDir:  srcDir,
		SiteDir:    filepath.Join(entryDir, opts.Config.Docs.OutputDir),
		ScratchDir: filepath.Join(entryDir, "scratch"),
		Primary:    primary,
		DryRun:     opts.DryRun,
		Report:     report,
		Recorder:   opts.Recorder,
		Logger:     logger,
	}

	stages := filterStages(entryStages(), opts.Only)
	runErr := RunStages(ctx, rs, stages)

	if rs.Artifact != nil {
		report.ArtifactDir = rs.Artifact.Dir
	}
	report.Finish()
	if err := report.Persist(entryDir); err != nil {
		logger.Warn("failed to persist run report", logfields.Error(err))
	}

	opts.Recorder.ObserveRunDuration(report.Duration())
	opts.Recorder.IncRunOutcome(string(report.Outcome))

	logger.Info("matrix entry finished",
		slog.String("outcome", string(report.Outcome)),
		logfields.DurationMS(float64(report.Duration().Milliseconds())))
	return report, runErr
}

// failEntry records a pre-stage setup failure against the named stage so the
// report still explains what went wrong.
func failEntry(report *RunReport, dir string, stage StageName, err error) (*RunReport, error) {
	report.RecordStage(stage, StageResultFatal, 0)
	report.AddIssue(stage, StageErrorFatal, err.Error())
	report.Finish()
	if dir != "" {
		_ = report.Persist(dir)
	}
	return report, NewFatalStageError(stage, err)
}

// entryStages is the canonical stage sequence for a matrix entry.
func entryStages() []StageDef {
	return NewPipeline().
		Add(StageInstall, NewInstallStage()).
		Add(StageValidate, NewValidateStage()).
		Add(StageAssemble, NewAssembleStage()).
		Add(StageStamp, NewStampStage()).
		Add(StageLinkcheck, NewLinkcheckStage()).
		Add(StageDeploy, NewDeployStage()).
		Build()
}

// filterStages keeps only the named stages, preserving pipeline order.
func filterStages(defs []StageDef, only []StageName) []StageDef {
	if len(only) == 0 {
		return defs
	}
	want := make(map[StageName]bool, len(only))
	for _, n := range only {
		want[n] = true
	}
	out := make([]StageDef, 0, len(defs))
	for _, d := range defs {
		if want[d.Name] {
			out = append(out, d)
		}
	}
	return out
}
