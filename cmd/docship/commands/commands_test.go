package commands

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Raydrick/docship/internal/config"
	"github.com/Raydrick/docship/internal/pipeline"
)

func TestParseStageNames(t *testing.T) {
	names, err := parseStageNames([]string{"install", "deploy"})
	require.NoError(t, err)
	require.Equal(t, []pipeline.StageName{pipeline.StageInstall, pipeline.StageDeploy}, names)

	_, err = parseStageNames([]string{"compile"})
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown stage "compile"`)

	names, err = parseStageNames(nil)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestInitCmdWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docship.yaml")
	cmd := &InitCmd{}
	require.NoError(t, cmd.Run(&Global{}, &CLI{Config: path}))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Matrix)

	// A second init without --force must refuse to overwrite.
	require.Error(t, cmd.Run(&Global{}, &CLI{Config: path}))
	require.NoError(t, (&InitCmd{Force: true}).Run(&Global{}, &CLI{Config: path}))
}
