package commands

import (
	"fmt"

	"github.com/Raydrick/docship/internal/config"
	"github.com/Raydrick/docship/internal/toolchain"
	"github.com/Raydrick/docship/internal/trigger"
)

// CheckCmd prints the plan a run would execute, including which matrix
// interpreters resolve and whether the deploy gate would open.
type CheckCmd struct {
	Source string `short:"s" help:"Source checkout to resolve the trigger from" default:"."`
	Branch string `help:"Override the triggering branch"`
}

func (c *CheckCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}

	trig, err := trigger.Resolve(c.Branch, "", c.Source)
	if err != nil {
		return err
	}

	fmt.Printf("trigger: branch %s (via %s)\n", trig.Branch, trig.Source)
	fmt.Println("matrix:")
	for _, entry := range cfg.Matrix {
		status := "ok"
		if _, err := toolchain.ResolveInterpreter(cfg.Runtime.Interpreter, entry.Version); err != nil {
			status = "interpreter missing"
		}
		suffix := ""
		if entry.AllowFailure {
			suffix = " (allow failure)"
		}
		fmt.Printf("  %s: %s%s\n", entry.Version, status, suffix)
	}

	fmt.Println("install manifests:")
	for _, m := range cfg.Install.Manifests {
		fmt.Printf("  %s\n", m)
	}
	fmt.Println("validate targets:")
	for _, t := range cfg.Validate.Targets {
		fmt.Printf("  %s\n", t)
	}

	fmt.Printf("generator: %s", cfg.Docs.Generator.Kind)
	if cfg.Docs.Generator.Kind == config.GeneratorExternal {
		fmt.Printf(" (%s)", cfg.Docs.Generator.Command)
	}
	fmt.Println()
	if cfg.Site.Domain != "" {
		fmt.Printf("domain: %s\n", cfg.Site.Domain)
	}

	if trig.ShouldDeploy(cfg.Deploy.ReleaseBranch) {
		fmt.Printf("deploy: yes (%s -> %s)\n", cfg.Deploy.ReleaseBranch, cfg.Deploy.TargetBranch)
	} else {
		fmt.Printf("deploy: no (branch %q is not release branch %q)\n",
			trig.Branch, cfg.Deploy.ReleaseBranch)
	}
	return nil
}
