package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEphemeralCreateAndCleanup(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	path := m.GetPath()
	if path == "" {
		t.Fatal("expected non-empty workspace path")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("workspace dir missing: %v", err)
	}
	if err := m.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, got err=%v", err)
	}
}

func TestPersistentSurvivesCleanup(t *testing.T) {
	base := t.TempDir()
	m := NewPersistentManager(base, "working")
	if err := m.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.GetPath() != filepath.Join(base, "working") {
		t.Fatalf("unexpected path %s", m.GetPath())
	}
	if err := m.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(m.GetPath()); err != nil {
		t.Fatalf("persistent workspace should survive cleanup: %v", err)
	}
}

func TestEntryDirIsolation(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer func() { _ = m.Cleanup() }()

	a, err := m.EntryDir("3.6")
	if err != nil {
		t.Fatalf("EntryDir: %v", err)
	}
	b, err := m.EntryDir("3.7-dev")
	if err != nil {
		t.Fatalf("EntryDir: %v", err)
	}
	if a == b {
		t.Fatal("matrix entries must get distinct directories")
	}
	if !strings.HasPrefix(a, m.GetPath()) || !strings.HasPrefix(b, m.GetPath()) {
		t.Fatal("entry dirs must live inside the workspace")
	}
}

func TestEntryDirSanitizesVersion(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer func() { _ = m.Cleanup() }()

	dir, err := m.EntryDir("weird/ver sion")
	if err != nil {
		t.Fatalf("EntryDir: %v", err)
	}
	if strings.ContainsAny(filepath.Base(dir), "/ ") {
		t.Fatalf("version not sanitized: %s", dir)
	}
}

func TestCreateSubdirRequiresWorkspace(t *testing.T) {
	m := NewManager(t.TempDir())
	if _, err := m.CreateSubdir("x"); err == nil {
		t.Fatal("expected error before Create")
	}
}
