package tasks

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{
		"a",
		"7A",
		"summer2025",
		"alice01",
		"under_score-dash",
		strings.Repeat("x", 64),
	}
	for _, name := range valid {
		got, err := ValidateIdentifier(name)
		if err != nil {
			t.Errorf("ValidateIdentifier(%q) unexpected error: %v", name, err)
			continue
		}
		if got != name {
			t.Errorf("ValidateIdentifier(%q) = %q, want unchanged", name, got)
		}
	}

	invalid := []string{
		"",
		strings.Repeat("x", 65),
		"..",
		"../etc",
		"a/b",
		`a\b`,
		"a b",
		"a.json",
		"élève",
		"a\x00b",
		" alice",
	}
	for _, name := range invalid {
		if _, err := ValidateIdentifier(name); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("ValidateIdentifier(%q) expected ErrInvalidIdentifier, got %v", name, err)
		}
	}
}

func TestNewNamespaceRequiresBothParts(t *testing.T) {
	if _, err := NewNamespace("7A", "alice01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewNamespace("7A", "../bob"); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected invalid student id to fail, got %v", err)
	}
	if _, err := NewNamespace("7/A", "bob"); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected invalid class code to fail, got %v", err)
	}
}

func TestResolverPath(t *testing.T) {
	base := t.TempDir()
	r := NewResolver(base)

	ns, err := NewNamespace("summer2025", "alice01")
	if err != nil {
		t.Fatalf("namespace: %v", err)
	}
	path, err := r.Path(ns)
	if err != nil {
		t.Fatalf("path: %v", err)
	}

	want := filepath.Join(base, "summer2025", "alice01.json")
	if path != want {
		t.Fatalf("expected %q, got %q", want, path)
	}
	info, err := os.Stat(filepath.Join(base, "summer2025"))
	if err != nil || !info.IsDir() {
		t.Fatalf("expected class directory to be created, err=%v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("resolving must not create the document, stat err=%v", err)
	}
}

func TestResolverRejectsZeroNamespace(t *testing.T) {
	base := t.TempDir()
	r := NewResolver(base)

	if _, err := r.Path(Namespace{}); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected nothing created, found %d entries", len(entries))
	}
}
