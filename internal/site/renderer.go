package site

import (
	"bytes"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/Raydrick/docship/internal/logfields"
)

// Renderer is the builtin Markdown-to-HTML site generator. It produces
// deterministic output: no timestamps, no generator metadata, pages rendered
// in sorted traversal order, so re-rendering an unchanged tree is
// byte-identical.
type Renderer struct {
	Title string

	md goldmark.Markdown
}

// page is one Markdown source file scheduled for rendering.
type page struct {
	relPath string // source path relative to docs root (slash-separated)
	outPath string // output path relative to artifact root (slash-separated)
	title   string
}

// Stats summarizes a render pass.
type Stats struct {
	Pages  int
	Assets int
}

// NewRenderer creates a builtin renderer with the given site title.
func NewRenderer(title string) *Renderer {
	if title == "" {
		title = "Documentation"
	}
	return &Renderer{
		Title: title,
		md:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Render assembles the site artifact from the docs source tree.
func (r *Renderer) Render(docsDir, outDir string) (*Stats, error) {
	pages, assets, err := r.collect(docsDir)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}

	for _, p := range pages {
		if err := r.renderPage(docsDir, outDir, p, pages); err != nil {
			return nil, err
		}
		stats.Pages++
	}

	for _, rel := range assets {
		if err := copyAsset(docsDir, outDir, rel); err != nil {
			return nil, err
		}
		stats.Assets++
	}

	slog.Debug("Builtin renderer finished",
		slog.Int("pages", stats.Pages),
		slog.Int("assets", stats.Assets),
		logfields.Path(outDir))
	return stats, nil
}

// collect walks the docs tree and partitions it into pages and raw assets.
func (r *Renderer) collect(docsDir string) ([]page, []string, error) {
	var pages []page
	var assets []string

	err := filepath.WalkDir(docsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(docsDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !strings.HasSuffix(rel, ".md") {
			assets = append(assets, rel)
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read page %s: %w", rel, err)
		}
		fm, _ := splitFrontmatter(content)
		fields, err := parseFrontmatter(fm)
		if err != nil {
			return fmt.Errorf("page %s: %w", rel, err)
		}

		title, _ := fields["title"].(string)
		if title == "" {
			base := filepath.Base(rel)
			if base == "index.md" {
				title = r.Title
			} else {
				title = TitleFromName(base)
			}
		}

		pages = append(pages, page{relPath: rel, outPath: outputPath(rel), title: title})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("collect docs tree: %w", err)
	}

	// WalkDir is lexical already; index pages sort first within their directory.
	sort.Slice(pages, func(i, j int) bool { return navLess(pages[i], pages[j]) })
	sort.Strings(assets)
	return pages, assets, nil
}

// navLess orders pages for the nav: index before siblings, then lexical.
func navLess(a, b page) bool {
	ai := filepath.Base(a.relPath) == "index.md"
	bi := filepath.Base(b.relPath) == "index.md"
	ad, bd := filepath.Dir(a.relPath), filepath.Dir(b.relPath)
	if ad == bd && ai != bi {
		return ai
	}
	return a.relPath < b.relPath
}

// outputPath maps a source page path to its artifact path.
func outputPath(rel string) string {
	out := strings.TrimSuffix(rel, ".md")
	dir, base := filepath.Dir(out), filepath.Base(out)
	if base != "index" {
		base = Slugify(base)
	}
	if dir == "." {
		return base + ".html"
	}
	return filepath.ToSlash(filepath.Join(dir, base+".html"))
}

// renderPage converts one Markdown page and writes the wrapped HTML document.
func (r *Renderer) renderPage(docsDir, outDir string, p page, all []page) error {
	content, err := os.ReadFile(filepath.Join(docsDir, filepath.FromSlash(p.relPath)))
	if err != nil {
		return fmt.Errorf("read page %s: %w", p.relPath, err)
	}
	_, body := splitFrontmatter(content)

	var rendered bytes.Buffer
	if err := r.md.Convert(body, &rendered); err != nil {
		return fmt.Errorf("render page %s: %w", p.relPath, err)
	}

	prefix := rootPrefix(p.outPath)

	var doc bytes.Buffer
	doc.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	doc.WriteString("<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&doc, "<title>%s - %s</title>\n", html.EscapeString(p.title), html.EscapeString(r.Title))
	doc.WriteString("</head>\n<body>\n<nav>\n<ul>\n")
	for _, n := range all {
		fmt.Fprintf(&doc, "<li><a href=\"%s%s\">%s</a></li>\n",
			prefix, n.outPath, html.EscapeString(n.title))
	}
	doc.WriteString("</ul>\n</nav>\n<main>\n")
	doc.Write(rendered.Bytes())
	doc.WriteString("</main>\n</body>\n</html>\n")

	target := filepath.Join(outDir, filepath.FromSlash(p.outPath))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create output dir for %s: %w", p.outPath, err)
	}
	if err := os.WriteFile(target, doc.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write page %s: %w", p.outPath, err)
	}
	return nil
}

// rootPrefix returns the relative path from a page back to the artifact root.
func rootPrefix(outPath string) string {
	depth := strings.Count(outPath, "/")
	return strings.Repeat("../", depth)
}

// copyAsset copies a non-Markdown file into the artifact unchanged.
func copyAsset(docsDir, outDir, rel string) error {
	data, err := os.ReadFile(filepath.Join(docsDir, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("read asset %s: %w", rel, err)
	}
	target := filepath.Join(outDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create asset dir for %s: %w", rel, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write asset %s: %w", rel, err)
	}
	return nil
}
