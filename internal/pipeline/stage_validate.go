package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Raydrick/docship/internal/logfields"
	"github.com/Raydrick/docship/internal/toolchain"
)

// NewValidateStage byte-compiles every configured target. All targets are
// attempted even after a failure so the report names every broken path; any
// failure makes the stage fatal.
func NewValidateStage() Stage {
	return func(ctx context.Context, rs *RunState) error {
		targets, err := toolchain.ExpandTargets(rs.SourceDir, rs.Config.Validate.Targets)
		if err != nil {
			return NewFatalStageError(StageValidate, err)
		}

		var failures []error
		for _, target := range targets {
			if err := ctx.Err(); err != nil {
				return NewCanceledStageError(StageValidate, err)
			}
			var compileErr error
			if target.IsDir {
				compileErr = rs.Runner.CompileDir(ctx, rs.Interp, target.Path)
			} else {
				compileErr = rs.Runner.CompileFile(ctx, rs.Interp, target.Path)
			}
			if compileErr != nil {
				rs.Logger.Error("target failed validation",
					logfields.Target(target.Path),
					logfields.Error(compileErr))
				failures = append(failures, compileErr)
				continue
			}
			rs.Logger.Debug("target validated", logfields.Target(target.Path))
		}

		if len(failures) > 0 {
			return NewFatalStageError(StageValidate,
				fmt.Errorf("%d of %d targets failed: %w", len(failures), len(targets), errors.Join(failures...)))
		}
		return nil
	}
}
