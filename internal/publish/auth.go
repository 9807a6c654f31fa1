package publish

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/Raydrick/docship/internal/config"
)

// ErrNoToken indicates token auth was configured but no token could be read.
var ErrNoToken = errors.New("publish: deploy token not available")

// ResolveAuth builds a go-git AuthMethod from the deploy auth configuration.
// Token auth reads the secret from the configured environment variable,
// falling back to the token file. The token value is never logged.
func ResolveAuth(cfg config.AuthConfig) (transport.AuthMethod, error) {
	switch cfg.Type {
	case config.AuthTypeNone:
		return nil, nil
	case config.AuthTypeToken:
		token, err := resolveToken(cfg)
		if err != nil {
			return nil, err
		}
		// Most git hosting services accept "token" as the username for token auth.
		return &githttp.BasicAuth{Username: "token", Password: token}, nil
	case config.AuthTypeBasic:
		if cfg.Username == "" || cfg.Password == "" {
			return nil, errors.New("publish: basic auth requires username and password")
		}
		return &githttp.BasicAuth{Username: cfg.Username, Password: cfg.Password}, nil
	case config.AuthTypeSSH:
		if cfg.KeyPath == "" {
			return nil, errors.New("publish: ssh auth requires key_path")
		}
		keys, err := gitssh.NewPublicKeysFromFile("git", cfg.KeyPath, "")
		if err != nil {
			return nil, fmt.Errorf("publish: load ssh key: %w", err)
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("publish: unsupported auth type %q", cfg.Type)
	}
}

// resolveToken reads the deploy token from the environment, falling back to
// the configured token file.
func resolveToken(cfg config.AuthConfig) (string, error) {
	if cfg.TokenEnv != "" {
		if token := strings.TrimSpace(os.Getenv(cfg.TokenEnv)); token != "" {
			return token, nil
		}
	}
	if cfg.TokenFile != "" {
		data, err := os.ReadFile(cfg.TokenFile)
		if err == nil {
			if token := strings.TrimSpace(string(data)); token != "" {
				return token, nil
			}
		}
	}
	return "", fmt.Errorf("%w: env %q unset and no usable token file", ErrNoToken, cfg.TokenEnv)
}
