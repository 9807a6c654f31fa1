package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/Raydrick/docship/internal/logfields"
	"github.com/Raydrick/docship/internal/metrics"
)

// RunStages executes stages in order, recording each result into the run
// report and metrics recorder. A fatal or canceled stage aborts the run;
// warnings and skips continue. Context cancellation is checked between
// stages so a canceled run stops before starting further work.
func RunStages(ctx context.Context, rs *RunState, stages []StageDef) error {
	for _, def := range stages {
		if err := ctx.Err(); err != nil {
			rs.Report.RecordStage(def.Name, StageResultCanceled, 0)
			rs.Report.AddIssue(def.Name, StageErrorCanceled, err.Error())
			return NewCanceledStageError(def.Name, err)
		}

		rs.Logger.Debug("stage starting", logfields.Stage(string(def.Name)))
		start := time.Now()
		err := def.Fn(ctx, rs)
		elapsed := time.Since(start)

		result := classify(ctx, err)
		rs.Report.RecordStage(def.Name, result, elapsed)
		rs.Recorder.ObserveStageDuration(string(def.Name), elapsed)
		rs.Recorder.IncStageResult(string(def.Name), resultLabel(result))

		switch result {
		case StageResultSuccess, StageResultSkipped:
			rs.Logger.Info("stage finished",
				logfields.Stage(string(def.Name)),
				logfields.DurationMS(float64(elapsed.Milliseconds())))
		case StageResultWarning:
			rs.Logger.Warn("stage finished with warnings",
				logfields.Stage(string(def.Name)),
				logfields.DurationMS(float64(elapsed.Milliseconds())),
				logfields.Error(err))
			rs.Report.AddIssue(def.Name, StageErrorWarning, err.Error())
		case StageResultCanceled:
			rs.Report.AddIssue(def.Name, StageErrorCanceled, err.Error())
			return NewCanceledStageError(def.Name, err)
		default:
			rs.Logger.Error("stage failed",
				logfields.Stage(string(def.Name)),
				logfields.DurationMS(float64(elapsed.Milliseconds())),
				logfields.Error(err))
			rs.Report.AddIssue(def.Name, StageErrorFatal, err.Error())
			var se *StageError
			if errors.As(err, &se) {
				return se
			}
			return NewFatalStageError(def.Name, err)
		}
	}
	return nil
}

func classify(ctx context.Context, err error) StageResult {
	if err == nil {
		return StageResultSuccess
	}
	if errors.Is(err, ErrStageSkipped) {
		return StageResultSkipped
	}
	var se *StageError
	if errors.As(err, &se) {
		switch se.Kind {
		case StageErrorWarning:
			return StageResultWarning
		case StageErrorCanceled:
			return StageResultCanceled
		default:
			return StageResultFatal
		}
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StageResultCanceled
	}
	return StageResultFatal
}

func resultLabel(r StageResult) metrics.ResultLabel {
	switch r {
	case StageResultSuccess:
		return metrics.ResultSuccess
	case StageResultWarning:
		return metrics.ResultWarning
	case StageResultCanceled:
		return metrics.ResultCanceled
	case StageResultSkipped:
		return metrics.ResultSkipped
	default:
		return metrics.ResultFatal
	}
}
