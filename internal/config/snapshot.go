package config

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Snapshot computes a stable hash of build-affecting normalized configuration fields.
// It is intentionally narrower than full serialization so unrelated config edits do
// not change the hash. Slice fields that are order-insensitive are sorted prior to
// hashing; the matrix keeps its declared order since entry order is part of the plan.
// Callers SHOULD run applyDefaults (via Load) before computing a snapshot.
func (c *Config) Snapshot() string {
	if c == nil {
		return ""
	}
	h := sha256.New()
	w := func(parts ...string) { h.Write([]byte(strings.Join(parts, "="))); h.Write([]byte{0}) }

	for i, e := range c.Matrix {
		w("matrix."+strconv.Itoa(i)+".version", e.Version)
		w("matrix."+strconv.Itoa(i)+".allow_failure", strconv.FormatBool(e.AllowFailure))
	}
	w("runtime.interpreter", c.Runtime.Interpreter)

	manifests := append([]string{}, c.Install.Manifests...)
	sort.Strings(manifests)
	w("install.manifests", strings.Join(manifests, ","))

	targets := append([]string{}, c.Validate.Targets...)
	sort.Strings(targets)
	w("validate.targets", strings.Join(targets, ","))

	w("docs.source_dir", c.Docs.SourceDir)
	w("docs.output_dir", c.Docs.OutputDir)
	w("docs.changelog.source", c.Docs.Changelog.Source)
	w("docs.changelog.destination", c.Docs.Changelog.Destination)
	w("docs.generator.kind", string(c.Docs.Generator.Kind))
	w("docs.generator.command", c.Docs.Generator.Command)
	w("docs.generator.args", strings.Join(c.Docs.Generator.Args, " "))
	w("docs.generator.title", c.Docs.Generator.Title)

	w("site.domain", c.Site.Domain)

	w("deploy.release_branch", c.Deploy.ReleaseBranch)
	w("deploy.target_branch", c.Deploy.TargetBranch)
	w("deploy.remote_url", c.Deploy.RemoteURL)
	w("deploy.keep_history", strconv.FormatBool(c.Deploy.KeepHistoryEnabled()))

	return hex.EncodeToString(h.Sum(nil))
}
