package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/executor"

	"github.com/Raydrick/docship/internal/logfields"
)

// Sentinel errors for subprocess failures, wrapped with the captured output.
var (
	ErrInstall   = errors.New("toolchain: dependency installation failed")
	ErrCompile   = errors.New("toolchain: compilation failed")
	ErrGenerator = errors.New("toolchain: site generator failed")
)

// Runner executes the pipeline's external tools (pip, py_compile, compileall,
// the site generator) inside a fixed working directory. All invocations honor
// context cancellation and surface captured output in returned errors.
type Runner struct {
	workDir string
}

// NewRunner creates a Runner rooted at workDir.
func NewRunner(workDir string) *Runner {
	return &Runner{workDir: workDir}
}

// InstallManifest runs the package installer for one dependency manifest:
// <interpreter> -m pip install -r <manifest>.
func (r *Runner) InstallManifest(ctx context.Context, interp *Interpreter, manifest string) error {
	slog.Debug("Installing dependency manifest",
		logfields.MatrixVersion(interp.Version),
		logfields.Path(manifest))

	res, err := r.run(ctx, interp.Command, "-m", "pip", "install", "-r", manifest)
	if err != nil {
		return fmt.Errorf("%w: manifest %s: %w", ErrInstall, manifest, withOutput(err, res))
	}
	return nil
}

// CompileFile byte-compiles one source file: <interpreter> -m py_compile <file>.
func (r *Runner) CompileFile(ctx context.Context, interp *Interpreter, path string) error {
	res, err := r.run(ctx, interp.Command, "-m", "py_compile", path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCompile, path, withOutput(err, res))
	}
	return nil
}

// CompileDir byte-compiles a directory tree: <interpreter> -m compileall -q <dir>.
func (r *Runner) CompileDir(ctx context.Context, interp *Interpreter, path string) error {
	res, err := r.run(ctx, interp.Command, "-m", "compileall", "-q", path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCompile, path, withOutput(err, res))
	}
	return nil
}

// RunGenerator invokes the external site generator. "{output}" in args is
// replaced with outputDir before execution.
func (r *Runner) RunGenerator(ctx context.Context, command string, args []string, outputDir string) error {
	expanded := make([]string, len(args))
	for i, a := range args {
		expanded[i] = strings.ReplaceAll(a, "{output}", outputDir)
	}

	slog.Debug("Running site generator", slog.String("command", command), slog.Any("args", expanded))

	res, err := r.run(ctx, command, expanded...)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrGenerator, command, withOutput(err, res))
	}
	return nil
}

// run executes one subprocess through the executor with captured output.
// No retries: a stage either succeeds or aborts the entry.
func (r *Runner) run(ctx context.Context, program string, args ...string) (*executor.Result, error) {
	cmd := executor.New(program, args...)
	return cmd.Execute(ctx,
		executor.WithWorkingDir(r.workDir),
		executor.WithCapture(true, true, false),
	)
}

// withOutput folds captured stderr (stdout as fallback) into the error chain so
// failures are diagnosable from the run report alone.
func withOutput(err error, res *executor.Result) error {
	if res == nil {
		return err
	}
	output := strings.TrimSpace(res.Stderr)
	if output == "" {
		output = strings.TrimSpace(res.Stdout)
	}
	if output == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, output)
}
