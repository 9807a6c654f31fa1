package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	exampleConfig := Example()

	data, err := yaml.Marshal(exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Example returns the shipped example configuration: two matrix entries with the
// newer one allowed to fail, two dependency manifests, four compile targets, and
// a branch-gated pages deployment.
func Example() *Config {
	keep := true
	cfg := &Config{
		Matrix: []MatrixEntry{
			{Version: "3.6"},
			{Version: "3.7-dev", AllowFailure: true},
		},
		Runtime: RuntimeConfig{Interpreter: "python{version}"},
		Install: InstallConfig{
			Manifests: []string{"requirements.txt", "requirements-docs.txt"},
		},
		Validate: ValidateConfig{
			Targets: []string{"nabbot.py", "launcher.py", "cogs", "utils"},
		},
		Docs: DocsConfig{
			SourceDir: "docs",
			OutputDir: "site",
			Changelog: ChangelogConfig{Source: "CHANGELOG.md", Destination: "changelog.md"},
			Generator: GeneratorConfig{
				Kind:    GeneratorExternal,
				Command: "mkdocs",
				Args:    []string{"build", "-d", "{output}"},
			},
		},
		Site: SiteConfig{Domain: "docs.nabbot.xyz"},
		Deploy: DeployConfig{
			ReleaseBranch: "master",
			TargetBranch:  "gh-pages",
			RemoteURL:     "https://github.com/example/project.git",
			KeepHistory:   &keep,
			Auth:          AuthConfig{Type: AuthTypeToken, TokenEnv: "DEPLOY_TOKEN"},
			Committer:     Committer{Name: "docship", Email: "docship@localhost"},
		},
	}
	cfg.applyDefaults()
	return cfg
}
