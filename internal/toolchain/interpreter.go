package toolchain

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrInterpreterNotFound indicates the resolved interpreter binary is not on PATH.
var ErrInterpreterNotFound = errors.New("toolchain: interpreter not found")

// versionPlaceholder is replaced with the matrix entry version in the
// configured interpreter template.
const versionPlaceholder = "{version}"

// Interpreter is a resolved interpreter binary for one matrix entry.
type Interpreter struct {
	Version string // matrix version identifier (e.g. "3.6")
	Command string // resolved command name (e.g. "python3.6")
	Path    string // absolute path from PATH lookup
}

// ResolveInterpreter expands the interpreter template for a matrix version and
// verifies the binary exists on PATH. This runs before any stage so a missing
// interpreter fails the entry up front rather than mid-pipeline.
func ResolveInterpreter(template, version string) (*Interpreter, error) {
	if strings.TrimSpace(template) == "" {
		return nil, errors.New("toolchain: interpreter template is empty")
	}
	command := strings.ReplaceAll(template, versionPlaceholder, version)

	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInterpreterNotFound, command, err)
	}

	return &Interpreter{Version: version, Command: command, Path: path}, nil
}
