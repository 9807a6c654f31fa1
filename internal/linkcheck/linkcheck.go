package linkcheck

import (
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// Issue is one intra-site link whose target does not exist in the artifact.
type Issue struct {
	Page   string // artifact-relative page the link appears on
	Target string // raw link destination
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s -> %s (%s)", i.Page, i.Target, i.Reason)
}

// linkAttrs maps HTML tags to the attribute carrying their destination.
var linkAttrs = map[string]string{
	"a":      "href",
	"img":    "src",
	"link":   "href",
	"script": "src",
}

// CheckDir verifies every intra-site link in the rendered HTML tree. External
// URLs, fragments, and mailto links are ignored; the check is purely local
// target existence. Returned issues are advisory: the stage that runs this
// treats them as warnings, never failures.
func CheckDir(root string) ([]Issue, error) {
	var issues []Issue

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open %s: %w", rel, err)
		}
		pageIssues, perr := checkPage(root, rel, f)
		_ = f.Close()
		if perr != nil {
			return fmt.Errorf("check %s: %w", rel, perr)
		}
		issues = append(issues, pageIssues...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issues, nil
}

// checkPage parses one HTML page and validates its local link targets.
func checkPage(root, page string, r io.Reader) ([]Issue, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attr, ok := linkAttrs[n.Data]; ok {
				for _, a := range n.Attr {
					if a.Key != attr {
						continue
					}
					if issue := checkTarget(root, page, a.Val); issue != nil {
						issues = append(issues, *issue)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return issues, nil
}

// checkTarget resolves a destination relative to the linking page and reports
// a missing local target. Returns nil for links that are out of scope.
func checkTarget(root, page, dest string) *Issue {
	if dest == "" || strings.HasPrefix(dest, "#") {
		return nil
	}
	u, err := url.Parse(dest)
	if err != nil {
		return &Issue{Page: page, Target: dest, Reason: "unparseable URL"}
	}
	if u.Scheme != "" || u.Host != "" {
		return nil // external
	}

	target := u.Path
	if target == "" {
		return nil
	}
	if path.IsAbs(target) {
		target = strings.TrimPrefix(target, "/")
	} else {
		target = path.Join(path.Dir(page), target)
	}
	if strings.HasPrefix(target, "..") {
		return &Issue{Page: page, Target: dest, Reason: "escapes artifact root"}
	}

	full := filepath.Join(root, filepath.FromSlash(target))
	info, err := os.Stat(full)
	if err != nil {
		return &Issue{Page: page, Target: dest, Reason: "target not found"}
	}
	if info.IsDir() {
		if _, err := os.Stat(filepath.Join(full, "index.html")); err != nil {
			return &Issue{Page: page, Target: dest, Reason: "directory has no index.html"}
		}
	}
	return nil
}
