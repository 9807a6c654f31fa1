package site

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"
)

// CNAMEFile is the custom-domain configuration file written into the artifact root.
const CNAMEFile = "CNAME"

// ErrNoArtifact indicates the generator produced no output directory.
var ErrNoArtifact = errors.New("site: artifact directory missing")

// Artifact is the ephemeral site tree produced by the generator. It is mutated
// once (the CNAME write) before deployment and discarded afterwards.
type Artifact struct {
	Dir string
}

// NewArtifact wraps an output directory produced by the generator.
func NewArtifact(dir string) (*Artifact, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoArtifact, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoArtifact, dir)
	}
	return &Artifact{Dir: dir}, nil
}

// StampDomain writes the configured hostname into the artifact's CNAME file.
// The file contains exactly the hostname and nothing else.
func (a *Artifact) StampDomain(domain string) error {
	if strings.TrimSpace(domain) == "" {
		return errors.New("site: domain is empty")
	}
	path := filepath.Join(a.Dir, CNAMEFile)
	if err := os.WriteFile(path, []byte(domain), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", CNAMEFile, err)
	}
	return nil
}

// Fingerprint computes a content hash of the rendered artifact tree. Every
// regular file contributes its sha256 keyed by slash-relative path, so a
// changed asset, page, or CNAME yields a new hash. The result drives deploy
// no-op detection.
func (a *Artifact) Fingerprint() (string, error) {
	type fileFP struct {
		path string
		sum  [sha256.Size]byte
	}
	var files []fileFP

	err := filepath.WalkDir(a.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(a.Dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		files = append(files, fileFP{path: filepath.ToSlash(rel), sum: sha256.Sum256(content)})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint artifact tree: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f.path))
		h.Write([]byte{0})
		h.Write(f.sum[:])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SourceFingerprint computes a stable hash over the Markdown pages of a docs
// source tree. Each page contributes its mdfp content fingerprint keyed by
// relative path; the aggregate is a sha256 over the sorted entries. An
// unchanged tree always yields the same hash, which is recorded in the run
// report alongside the artifact fingerprint.
func SourceFingerprint(docsDir string) (string, error) {
	type pageFP struct {
		path string
		fp   string
	}
	var pages []pageFP

	err := filepath.WalkDir(docsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(docsDir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		fm, body := splitFrontmatter(content)
		pages = append(pages, pageFP{
			path: filepath.ToSlash(rel),
			fp:   mdfp.CalculateFingerprintFromParts(string(fm), string(body)),
		})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint docs tree: %w", err)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].path < pages[j].path })

	h := sha256.New()
	for _, p := range pages {
		h.Write([]byte(p.path))
		h.Write([]byte{0})
		h.Write([]byte(p.fp))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// splitFrontmatter separates a YAML frontmatter block (--- delimited) from the
// Markdown body. Content without frontmatter returns an empty frontmatter slice.
func splitFrontmatter(content []byte) (frontmatter, body []byte) {
	s := string(content)
	if !strings.HasPrefix(s, "---\n") && !strings.HasPrefix(s, "---\r\n") {
		return nil, content
	}
	rest := s[strings.Index(s, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, content
	}
	fm := rest[:end]
	after := rest[end+len("\n---"):]
	if idx := strings.Index(after, "\n"); idx >= 0 {
		after = after[idx+1:]
	} else {
		after = ""
	}
	return []byte(fm), []byte(after)
}

// parseFrontmatter decodes the YAML frontmatter fields of a page.
func parseFrontmatter(frontmatter []byte) (map[string]any, error) {
	if len(frontmatter) == 0 {
		return map[string]any{}, nil
	}
	fields := map[string]any{}
	if err := yaml.Unmarshal(frontmatter, &fields); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	return fields, nil
}
