package main

import (
	"fmt"
	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/Raydrick/docship/cmd/docship/commands"
	"github.com/Raydrick/docship/internal/version"
)

func main() {
	cli := &commands.CLI{}
	ctx := kong.Parse(cli,
		kong.Name("docship"),
		kong.Description("Branch-gated build-and-deploy pipeline for documentation sites"),
		kong.UsageOnError(),
		kong.Vars{
			"version": fmt.Sprintf("docship %s (commit %s, built %s)",
				version.Version, version.GitCommit, version.BuildTime),
		},
	)
	err := ctx.Run(&commands.Global{Logger: slog.Default()})
	ctx.FatalIfErrorf(err)
}
