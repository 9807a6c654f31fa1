package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const reportSchemaVersion = 1

// Outcome is the aggregate verdict of a matrix entry run.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// Issue is a single recorded problem, attributed to the stage that raised it.
type Issue struct {
	Stage   StageName      `json:"stage"`
	Kind    StageErrorKind `json:"kind"`
	Message string         `json:"message"`
}

// RunReport accumulates everything that happened during one matrix entry run.
// It is persisted next to the entry workspace as JSON plus a human summary.
type RunReport struct {
	SchemaVersion int    `json:"schema_version"`
	RunID         string `json:"run_id"`
	ToolVersion   string `json:"tool_version,omitempty"`

	MatrixVersion string `json:"matrix_version"`
	AllowFailure  bool   `json:"allow_failure"`
	Branch        string `json:"branch"`
	Commit        string `json:"commit,omitempty"`
	ConfigHash    string `json:"config_hash,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	StageOrder     []StageName                 `json:"stage_order"`
	StageResults   map[StageName]StageResult   `json:"stage_results"`
	StageDurations map[StageName]time.Duration `json:"stage_durations"`
	Issues         []Issue                     `json:"issues,omitempty"`

	SourceHash    string  `json:"source_hash,omitempty"`
	ArtifactHash  string  `json:"artifact_hash,omitempty"`
	ArtifactDir   string  `json:"-"`
	Deployed      bool    `json:"deployed"`
	DeployCommit  string  `json:"deploy_commit,omitempty"`
	DeploySkipped string  `json:"deploy_skipped,omitempty"`
	Outcome       Outcome `json:"outcome"`
}

// NewRunReport creates a report for a single matrix entry.
func NewRunReport(runID, matrixVersion string) *RunReport {
	return &RunReport{
		SchemaVersion:  reportSchemaVersion,
		RunID:          runID,
		MatrixVersion:  matrixVersion,
		StartedAt:      time.Now(),
		StageResults:   make(map[StageName]StageResult),
		StageDurations: make(map[StageName]time.Duration),
	}
}

// RecordStage stores the result and duration of a completed stage.
func (r *RunReport) RecordStage(name StageName, result StageResult, d time.Duration) {
	r.StageOrder = append(r.StageOrder, name)
	r.StageResults[name] = result
	r.StageDurations[name] = d
}

// AddIssue records a problem raised by a stage.
func (r *RunReport) AddIssue(stage StageName, kind StageErrorKind, msg string) {
	r.Issues = append(r.Issues, Issue{Stage: stage, Kind: kind, Message: msg})
}

// Finish stamps the end time and derives the aggregate outcome.
func (r *RunReport) Finish() {
	r.FinishedAt = time.Now()
	r.Outcome = r.DeriveOutcome()
}

// DeriveOutcome computes the verdict from recorded stage results. Canceled
// dominates, then fatal, then warning.
func (r *RunReport) DeriveOutcome() Outcome {
	out := OutcomeSuccess
	for _, res := range r.StageResults {
		switch res {
		case StageResultCanceled:
			return OutcomeCanceled
		case StageResultFatal:
			out = OutcomeFailed
		case StageResultWarning:
			if out == OutcomeSuccess {
				out = OutcomeWarning
			}
		}
	}
	return out
}

// Duration returns the total wall-clock time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary renders a short human-readable account of the run.
func (r *RunReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (matrix %s, branch %s): %s in %s\n",
		r.RunID, r.MatrixVersion, r.Branch, r.Outcome, r.Duration().Round(time.Millisecond))
	for _, name := range r.StageOrder {
		fmt.Fprintf(&b, "  %-10s %-9s %s\n", name, r.StageResults[name],
			r.StageDurations[name].Round(time.Millisecond))
	}
	if r.Deployed {
		fmt.Fprintf(&b, "  deployed commit %s\n", r.DeployCommit)
	} else if r.DeploySkipped != "" {
		fmt.Fprintf(&b, "  deploy skipped: %s\n", r.DeploySkipped)
	}
	for _, is := range sortedIssues(r.Issues) {
		fmt.Fprintf(&b, "  [%s] %s: %s\n", is.Kind, is.Stage, is.Message)
	}
	return b.String()
}

// Persist writes run-report.json and run-report.txt into dir. Files are
// written to a temp path first and renamed so readers never see a torn write.
func (r *RunReport) Persist(dir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, "run-report.json"), data); err != nil {
		return err
	}
	return atomicWrite(filepath.Join(dir, "run-report.txt"), []byte(r.Summary()))
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func sortedIssues(issues []Issue) []Issue {
	out := make([]Issue, len(issues))
	copy(out, issues)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}
