package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the pipeline configuration loaded from docship.yaml.
type Config struct {
	Matrix      []MatrixEntry  `yaml:"matrix"`
	Concurrency int            `yaml:"concurrency,omitempty"` // max matrix entries running at once (0 = all)
	Runtime     RuntimeConfig  `yaml:"runtime"`
	Install     InstallConfig  `yaml:"install"`
	Validate    ValidateConfig `yaml:"validate"`
	Docs        DocsConfig     `yaml:"docs"`
	Site        SiteConfig     `yaml:"site"`
	Deploy      DeployConfig   `yaml:"deploy"`
	Daemon      *DaemonConfig  `yaml:"daemon,omitempty"`
}

// MatrixEntry is one interpreter version to run the pipeline against.
type MatrixEntry struct {
	Version      string `yaml:"version"`
	AllowFailure bool   `yaml:"allow_failure,omitempty"`
}

// RuntimeConfig describes how the interpreter binary is resolved per matrix entry.
type RuntimeConfig struct {
	// Interpreter is a command template; "{version}" is replaced with the
	// matrix entry version (e.g. "python{version}" -> "python3.6").
	Interpreter string `yaml:"interpreter"`
}

// InstallConfig lists the dependency manifests installed before validation.
type InstallConfig struct {
	Manifests []string `yaml:"manifests"`
}

// ValidateConfig lists the source paths whose syntax is checked by compilation.
type ValidateConfig struct {
	// Targets are files or directories; doublestar glob patterns are allowed.
	Targets []string `yaml:"targets"`
}

// DocsConfig describes the documentation source tree and site generator.
type DocsConfig struct {
	SourceDir string          `yaml:"source_dir"`
	OutputDir string          `yaml:"output_dir"`
	Changelog ChangelogConfig `yaml:"changelog"`
	Generator GeneratorConfig `yaml:"generator"`
}

// ChangelogConfig maps the project changelog into the docs source tree.
type ChangelogConfig struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"` // filename inside SourceDir
}

// GeneratorKind selects between an external generator command and the builtin renderer.
type GeneratorKind string

const (
	GeneratorExternal GeneratorKind = "external"
	GeneratorBuiltin  GeneratorKind = "builtin"
)

// GeneratorConfig configures site assembly.
type GeneratorConfig struct {
	Kind GeneratorKind `yaml:"kind,omitempty"`
	// Command and Args are used when Kind is "external". "{output}" in Args is
	// replaced with the artifact directory.
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	// Title is used by the builtin renderer for the site header.
	Title string `yaml:"title,omitempty"`
}

// SiteConfig holds artifact-level settings.
type SiteConfig struct {
	// Domain is written verbatim into the artifact's CNAME file.
	Domain string `yaml:"domain"`
}

// DeployConfig controls the branch-gated pages deployment.
type DeployConfig struct {
	ReleaseBranch string     `yaml:"release_branch"`
	TargetBranch  string     `yaml:"target_branch"`
	RemoteURL     string     `yaml:"remote_url"`
	KeepHistory   *bool      `yaml:"keep_history,omitempty"` // default true
	Auth          AuthConfig `yaml:"auth"`
	Committer     Committer  `yaml:"committer"`
}

// AuthType enumerates supported deployment authentication methods.
type AuthType string

const (
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeNone  AuthType = "none"
)

// AuthConfig represents deployment authentication configuration.
// Token auth reads the secret from TokenEnv, falling back to TokenFile.
type AuthConfig struct {
	Type      AuthType `yaml:"type"`
	TokenEnv  string   `yaml:"token_env,omitempty"`
	TokenFile string   `yaml:"token_file,omitempty"`
	Username  string   `yaml:"username,omitempty"`
	Password  string   `yaml:"password,omitempty"`
	KeyPath   string   `yaml:"key_path,omitempty"`
}

// Committer is the identity recorded on deployment commits.
type Committer struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// DaemonConfig configures continuous mode.
type DaemonConfig struct {
	Listen        string      `yaml:"listen"`
	WebhookSecret string      `yaml:"webhook_secret,omitempty"`
	RepoURL       string      `yaml:"repo_url"`
	Schedule      string      `yaml:"schedule,omitempty"` // Go duration, e.g. "1h"
	QueueSize     int         `yaml:"queue_size,omitempty"`
	Workers       int         `yaml:"workers,omitempty"`
	HistoryDB     string      `yaml:"history_db,omitempty"`
	NATS          *NATSConfig `yaml:"nats,omitempty"`
}

// NATSConfig enables run event publishing when a URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject,omitempty"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env files if present; missing files are fine.
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content.
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyDefaults fills in unset fields with their documented defaults.
func (c *Config) applyDefaults() {
	if c.Runtime.Interpreter == "" {
		c.Runtime.Interpreter = "python{version}"
	}
	if c.Docs.SourceDir == "" {
		c.Docs.SourceDir = "docs"
	}
	if c.Docs.OutputDir == "" {
		c.Docs.OutputDir = "site"
	}
	if c.Docs.Changelog.Destination == "" && c.Docs.Changelog.Source != "" {
		c.Docs.Changelog.Destination = "changelog.md"
	}
	if c.Docs.Generator.Kind == "" {
		if c.Docs.Generator.Command != "" {
			c.Docs.Generator.Kind = GeneratorExternal
		} else {
			c.Docs.Generator.Kind = GeneratorBuiltin
		}
	}
	if c.Deploy.TargetBranch == "" {
		c.Deploy.TargetBranch = "gh-pages"
	}
	if c.Deploy.KeepHistory == nil {
		t := true
		c.Deploy.KeepHistory = &t
	}
	if c.Deploy.Auth.Type == "" {
		c.Deploy.Auth.Type = AuthTypeToken
	}
	if c.Deploy.Auth.Type == AuthTypeToken && c.Deploy.Auth.TokenEnv == "" {
		c.Deploy.Auth.TokenEnv = "DEPLOY_TOKEN"
	}
	if c.Deploy.Committer.Name == "" {
		c.Deploy.Committer.Name = "docship"
	}
	if c.Deploy.Committer.Email == "" {
		c.Deploy.Committer.Email = "docship@localhost"
	}
	if c.Daemon != nil {
		if c.Daemon.Listen == "" {
			c.Daemon.Listen = ":8047"
		}
		if c.Daemon.QueueSize <= 0 {
			c.Daemon.QueueSize = 100
		}
		if c.Daemon.Workers <= 0 {
			c.Daemon.Workers = 1
		}
		if c.Daemon.HistoryDB == "" {
			c.Daemon.HistoryDB = "docship-history.db"
		}
		if c.Daemon.NATS != nil && c.Daemon.NATS.Subject == "" {
			c.Daemon.NATS.Subject = "docship.runs"
		}
	}
}

// validate checks structural invariants that cannot be defaulted away.
func (c *Config) validate() error {
	if len(c.Matrix) == 0 {
		return fmt.Errorf("config: matrix must declare at least one version entry")
	}
	seen := make(map[string]bool, len(c.Matrix))
	for i, e := range c.Matrix {
		if strings.TrimSpace(e.Version) == "" {
			return fmt.Errorf("config: matrix entry %d has empty version", i)
		}
		if seen[e.Version] {
			return fmt.Errorf("config: duplicate matrix version %q", e.Version)
		}
		seen[e.Version] = true
	}
	if c.Deploy.ReleaseBranch == "" {
		return fmt.Errorf("config: deploy.release_branch is required")
	}
	if c.Site.Domain != "" && strings.ContainsAny(c.Site.Domain, " \t\n") {
		return fmt.Errorf("config: site.domain %q must be a single hostname", c.Site.Domain)
	}
	if c.Docs.Generator.Kind == GeneratorExternal && c.Docs.Generator.Command == "" {
		return fmt.Errorf("config: external generator requires a command")
	}
	switch c.Deploy.Auth.Type {
	case AuthTypeToken, AuthTypeBasic, AuthTypeSSH, AuthTypeNone:
	default:
		return fmt.Errorf("config: unsupported deploy auth type %q", c.Deploy.Auth.Type)
	}
	if c.Daemon != nil {
		if c.Daemon.Schedule != "" {
			if _, err := parseSchedule(c.Daemon.Schedule); err != nil {
				return fmt.Errorf("config: invalid daemon.schedule: %w", err)
			}
		}
		if c.Daemon.RepoURL == "" {
			return fmt.Errorf("config: daemon.repo_url is required in daemon mode")
		}
	}
	return nil
}

// KeepHistoryEnabled reports whether deployments preserve prior history.
func (c *DeployConfig) KeepHistoryEnabled() bool {
	return c.KeepHistory == nil || *c.KeepHistory
}
