package main

import (
	"os"
	"path/filepath"
	"testing"
)

const testModule = "example.com/repo"

func writeGoFile(t *testing.T, root string, rel string, body string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestCollectViolationsFlagsLayerLeaks(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)

	writeGoFile(t, root, "contexts/c/svc/domain/entities/a.go", `package entities
import (
	"time"
	"example.com/repo/contexts/c/svc/adapters/memory"
)
var _ = time.Now
var _ = memory.X
`)
	writeGoFile(t, root, "contexts/c/svc/application/commands/b.go", `package commands
import (
	"example.com/repo/contexts/c/svc/ports"
	"example.com/repo/contracts/gen/events/v1"
	"example.com/repo/internal/platform/config"
	"example.com/repo/contexts/other/svc/domain"
)
`)
	writeGoFile(t, root, "contexts/c/svc/adapters/memory/c.go", `package memory
import "github.com/patrickmn/go-cache"
`)

	violations := collectViolations(testModule, "contexts")
	rules := map[string]bool{}
	for _, v := range violations {
		rules[v.Rule] = true
	}

	for _, want := range []string{
		"domain must not import adapters",
		"domain import is outside explicit allowlist",
		"application must not import runtime infrastructure",
		"cross-module imports are forbidden",
	} {
		if !rules[want] {
			t.Fatalf("expected rule %q in %+v", want, violations)
		}
	}
	for _, v := range violations {
		if v.File == "contexts/c/svc/adapters/memory/c.go" {
			t.Fatalf("adapters may import third-party packages, got %+v", v)
		}
		if v.Import == testModule+"/contracts/gen/events/v1" || v.Import == testModule+"/contexts/c/svc/ports" {
			t.Fatalf("allowed import flagged: %+v", v)
		}
	}
}

func TestReadModulePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "go.mod")
	if err := os.WriteFile(path, []byte("module "+testModule+"\n\ngo 1.25\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := readModulePath(path)
	if err != nil || got != testModule {
		t.Fatalf("readModulePath = %q, %v", got, err)
	}
}
