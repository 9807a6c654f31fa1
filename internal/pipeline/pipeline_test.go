package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Raydrick/docship/internal/config"
	"github.com/Raydrick/docship/internal/metrics"
	"github.com/Raydrick/docship/internal/toolchain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testState() *RunState {
	return &RunState{
		Report:   NewRunReport("run-1", "3.6"),
		Recorder: metrics.NoopRecorder{},
		Logger:   testLogger(),
	}
}

func TestPipelineBuilderAddIf(t *testing.T) {
	noop := func(context.Context, *RunState) error { return nil }
	defs := NewPipeline().
		Add(StageInstall, noop).
		AddIf(false, StageValidate, noop).
		AddIf(true, StageAssemble, noop).
		Build()

	require.Len(t, defs, 2)
	require.Equal(t, StageInstall, defs[0].Name)
	require.Equal(t, StageAssemble, defs[1].Name)
}

func TestRunStagesRecordsResults(t *testing.T) {
	rs := testState()
	var order []StageName
	defs := []StageDef{
		{Name: StageInstall, Fn: func(context.Context, *RunState) error {
			order = append(order, StageInstall)
			return nil
		}},
		{Name: StageAssemble, Fn: func(context.Context, *RunState) error {
			order = append(order, StageAssemble)
			return nil
		}},
	}

	require.NoError(t, RunStages(context.Background(), rs, defs))
	require.Equal(t, []StageName{StageInstall, StageAssemble}, order)
	require.Equal(t, StageResultSuccess, rs.Report.StageResults[StageInstall])
	require.Equal(t, StageResultSuccess, rs.Report.StageResults[StageAssemble])
}

func TestRunStagesAbortsOnFatal(t *testing.T) {
	rs := testState()
	ran := false
	defs := []StageDef{
		{Name: StageInstall, Fn: func(context.Context, *RunState) error {
			return NewFatalStageError(StageInstall, errors.New("boom"))
		}},
		{Name: StageValidate, Fn: func(context.Context, *RunState) error {
			ran = true
			return nil
		}},
	}

	err := RunStages(context.Background(), rs, defs)
	require.Error(t, err)
	require.False(t, ran, "stages after a fatal one must not run")
	require.Equal(t, StageResultFatal, rs.Report.StageResults[StageInstall])
	require.NotContains(t, rs.Report.StageResults, StageValidate)
}

func TestRunStagesWarningContinues(t *testing.T) {
	rs := testState()
	ran := false
	defs := []StageDef{
		{Name: StageLinkcheck, Fn: func(context.Context, *RunState) error {
			return NewWarnStageError(StageLinkcheck, errors.New("broken link"))
		}},
		{Name: StageDeploy, Fn: func(context.Context, *RunState) error {
			ran = true
			return nil
		}},
	}

	require.NoError(t, RunStages(context.Background(), rs, defs))
	require.True(t, ran)
	require.Equal(t, StageResultWarning, rs.Report.StageResults[StageLinkcheck])
	require.Len(t, rs.Report.Issues, 1)
}

func TestRunStagesSkippedContinues(t *testing.T) {
	rs := testState()
	defs := []StageDef{
		{Name: StageStamp, Fn: func(context.Context, *RunState) error {
			return ErrStageSkipped
		}},
		{Name: StageDeploy, Fn: func(context.Context, *RunState) error { return nil }},
	}

	require.NoError(t, RunStages(context.Background(), rs, defs))
	require.Equal(t, StageResultSkipped, rs.Report.StageResults[StageStamp])
	require.Equal(t, StageResultSuccess, rs.Report.StageResults[StageDeploy])
	rs.Report.Finish()
	require.Equal(t, OutcomeSuccess, rs.Report.Outcome)
}

func TestRunStagesCanceledBetweenStages(t *testing.T) {
	rs := testState()
	ctx, cancel := context.WithCancel(context.Background())
	defs := []StageDef{
		{Name: StageInstall, Fn: func(context.Context, *RunState) error {
			cancel()
			return nil
		}},
		{Name: StageValidate, Fn: func(context.Context, *RunState) error {
			t.Fatal("must not run after cancellation")
			return nil
		}},
	}

	err := RunStages(ctx, rs, defs)
	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StageErrorCanceled, se.Kind)
	require.Equal(t, StageResultCanceled, rs.Report.StageResults[StageValidate])
}

func TestInstallStageMissingManifestFatal(t *testing.T) {
	rs := testState()
	rs.SourceDir = t.TempDir()
	rs.Config = &config.Config{
		Install: config.InstallConfig{Manifests: []string{"requirements.txt"}},
	}

	err := NewInstallStage()(context.Background(), rs)
	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StageErrorFatal, se.Kind)
	require.Contains(t, err.Error(), "requirements.txt")
}

// fakeInterpreter writes a stand-in interpreter script that rejects any
// invocation mentioning "bad" and accepts everything else.
func fakeInterpreter(t *testing.T) *toolchain.Interpreter {
	t.Helper()
	script := filepath.Join(t.TempDir(), "pyfake")
	body := "#!/bin/sh\ncase \"$*\" in\n*bad*) echo \"invalid syntax\" >&2; exit 1;;\nesac\nexit 0\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return &toolchain.Interpreter{Version: "3.6", Command: script, Path: script}
}

func TestValidateStageAttemptsAllTargets(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"good.py", "bad.py", "cogs.py"} {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte("pass\n"), 0o644))
	}

	rs := testState()
	rs.SourceDir = src
	rs.Config = &config.Config{
		Validate: config.ValidateConfig{Targets: []string{"bad.py", "cogs.py", "good.py"}},
	}
	rs.Interp = fakeInterpreter(t)
	rs.Runner = toolchain.NewRunner(src)

	err := NewValidateStage()(context.Background(), rs)
	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StageErrorFatal, se.Kind)
	// All three targets were attempted even though the first one failed.
	require.Contains(t, err.Error(), "1 of 3 targets failed")
	require.Contains(t, err.Error(), "bad.py")
}

func TestValidateStagePassesWhenAllCompile(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"good.py", "cogs.py"} {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte("pass\n"), 0o644))
	}

	rs := testState()
	rs.SourceDir = src
	rs.Config = &config.Config{
		Validate: config.ValidateConfig{Targets: []string{"cogs.py", "good.py"}},
	}
	rs.Interp = fakeInterpreter(t)
	rs.Runner = toolchain.NewRunner(src)

	require.NoError(t, NewValidateStage()(context.Background(), rs))
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, StageResultSuccess, classify(ctx, nil))
	require.Equal(t, StageResultSkipped, classify(ctx, ErrStageSkipped))
	require.Equal(t, StageResultWarning, classify(ctx, NewWarnStageError(StageLinkcheck, errors.New("x"))))
	require.Equal(t, StageResultFatal, classify(ctx, errors.New("plain")))
	require.Equal(t, StageResultCanceled, classify(ctx, context.Canceled))
}

func TestDeriveOutcome(t *testing.T) {
	tests := []struct {
		name    string
		results map[StageName]StageResult
		want    Outcome
	}{
		{"all success", map[StageName]StageResult{StageInstall: StageResultSuccess}, OutcomeSuccess},
		{"skipped is success", map[StageName]StageResult{StageDeploy: StageResultSkipped}, OutcomeSuccess},
		{"warning", map[StageName]StageResult{StageInstall: StageResultSuccess, StageLinkcheck: StageResultWarning}, OutcomeWarning},
		{"fatal beats warning", map[StageName]StageResult{StageLinkcheck: StageResultWarning, StageValidate: StageResultFatal}, OutcomeFailed},
		{"canceled dominates", map[StageName]StageResult{StageValidate: StageResultFatal, StageDeploy: StageResultCanceled}, OutcomeCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunReport("r", "3.6")
			for name, res := range tt.results {
				r.StageResults[name] = res
			}
			require.Equal(t, tt.want, r.DeriveOutcome())
		})
	}
}

func TestReportPersist(t *testing.T) {
	dir := t.TempDir()
	r := NewRunReport("run-9", "3.7-dev")
	r.Branch = "master"
	r.RecordStage(StageInstall, StageResultSuccess, 120*time.Millisecond)
	r.Finish()

	require.NoError(t, r.Persist(dir))

	data, err := os.ReadFile(filepath.Join(dir, "run-report.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"run_id": "run-9"`)

	txt, err := os.ReadFile(filepath.Join(dir, "run-report.txt"))
	require.NoError(t, err)
	require.Contains(t, string(txt), "run run-9")
	require.Contains(t, string(txt), "install")

	// No leftover temp files from the atomic write.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp")
	}
}
