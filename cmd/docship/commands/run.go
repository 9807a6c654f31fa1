package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Raydrick/docship/internal/config"
	"github.com/Raydrick/docship/internal/logfields"
	"github.com/Raydrick/docship/internal/metrics"
	"github.com/Raydrick/docship/internal/pipeline"
	"github.com/Raydrick/docship/internal/trigger"
	"github.com/Raydrick/docship/internal/version"
	"github.com/Raydrick/docship/internal/workspace"
)

// RunCmd implements the 'run' command: one matrix run over a local checkout.
type RunCmd struct {
	Source string   `short:"s" help:"Source checkout to run against" default:"."`
	Output string   `short:"o" help:"Copy the assembled site artifact to this directory after the run"`
	Branch string   `help:"Override the triggering branch (default: resolved from CI env or git HEAD)"`
	Commit string   `help:"Override the triggering commit"`
	Only   []string `help:"Run only the named stages (install, validate, assemble, stamp, linkcheck, deploy)"`
	DryRun bool     `help:"Run everything except the actual deployment"`
	Keep   bool     `help:"Keep the workspace after the run for inspection"`
}

func (r *RunCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}

	trig, err := trigger.Resolve(r.Branch, r.Commit, r.Source)
	if err != nil {
		return err
	}
	slog.Info("Trigger resolved",
		logfields.Branch(trig.Branch),
		logfields.Commit(trig.ShortCommit()),
		slog.String("source", trig.Source))

	only, err := parseStageNames(r.Only)
	if err != nil {
		return err
	}

	ws := workspace.NewManager("")
	if err := ws.Create(); err != nil {
		return err
	}
	defer func() {
		if r.Keep {
			slog.Info("Keeping workspace", logfields.Path(ws.GetPath()))
			return
		}
		if err := ws.Cleanup(); err != nil {
			slog.Warn("Failed to cleanup workspace", logfields.Error(err))
		}
	}()

	result, err := pipeline.RunMatrix(context.Background(), pipeline.MatrixOptions{
		Config:    cfg,
		Trigger:   trig,
		SourceDir: r.Source,
		Workspace: ws,
		Recorder:  metrics.NoopRecorder{},
		Logger:    slog.Default(),
		DryRun:    r.DryRun,
		Only:      only,
		Version:   version.Version,
	})
	if err != nil {
		return err
	}

	for _, res := range result.Results {
		if res.Report != nil {
			fmt.Fprint(os.Stdout, res.Report.Summary())
		}
	}

	if r.Output != "" && result.Results[0].Report != nil {
		if dir := result.Results[0].Report.ArtifactDir; dir != "" {
			if err := CopyDir(dir, r.Output); err != nil {
				return fmt.Errorf("copy artifact to %s: %w", r.Output, err)
			}
			slog.Info("Artifact copied", logfields.Path(r.Output))
		}
	}

	if result.Failed() {
		return fmt.Errorf("run %s failed with outcome %s", result.RunID, result.Outcome())
	}
	fmt.Printf("run %s finished: %s\n", result.RunID, result.Outcome())
	return nil
}

func parseStageNames(names []string) ([]pipeline.StageName, error) {
	valid := map[pipeline.StageName]bool{
		pipeline.StageInstall:   true,
		pipeline.StageValidate:  true,
		pipeline.StageAssemble:  true,
		pipeline.StageStamp:     true,
		pipeline.StageLinkcheck: true,
		pipeline.StageDeploy:    true,
	}
	out := make([]pipeline.StageName, 0, len(names))
	for _, n := range names {
		name := pipeline.StageName(n)
		if !valid[name] {
			return nil, fmt.Errorf("unknown stage %q", n)
		}
		out = append(out, name)
	}
	return out, nil
}
