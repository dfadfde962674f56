package stackshop

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadSeedFile(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	seed := `
providers:
  - name: lab-east
    authUrl: http://keystone.invalid:5000
    username: svc
    password: hunter2
    region: RegionOne
  - name: lab-west
    authUrl: http://keystone-west.invalid:5000
    username: svc
    password: hunter2
    enabled: false
workshops:
  - provider: lab-east
    name: intro-networking
    projectId: proj-abc
  - provider: lab-east
    name: advanced-routing
    projectName: advanced
    lockoutStart: 2026-03-01T09:00:00Z
    lockoutEnd: 2026-03-01T17:00:00Z
`
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	if err := env.svc.loadSeedFile(ctx, path); err != nil {
		t.Fatalf("load seed: %v", err)
	}

	providers, err := env.providers.List(ctx, false)
	if err != nil {
		t.Fatalf("list providers: %v", err)
	}
	if len(providers) != 2 {
		t.Fatalf("providers: got %d want 2", len(providers))
	}
	for _, p := range providers {
		// Passwords are sealed before they hit the store.
		if !strings.HasPrefix(p.Password, "enc:") {
			t.Fatalf("provider %s password not sealed: %q", p.Name, p.Password)
		}
		plain, err := env.svc.box.Decrypt(p.Password)
		if err != nil || plain != "hunter2" {
			t.Fatalf("provider %s password round trip: %q %v", p.Name, plain, err)
		}
	}

	workshops, err := env.workshops.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("list workshops: %v", err)
	}
	if len(workshops) != 2 {
		t.Fatalf("workshops: got %d want 2", len(workshops))
	}
	var windowed *WorkshopRecord
	for i := range workshops {
		if workshops[i].Name == "advanced-routing" {
			windowed = &workshops[i]
		}
	}
	if windowed == nil || windowed.LockoutStart == nil || windowed.LockoutEnd == nil {
		t.Fatalf("windowed workshop boundaries not loaded: %+v", windowed)
	}

	// Re-running the same file upserts instead of duplicating.
	if err := env.svc.loadSeedFile(ctx, path); err != nil {
		t.Fatalf("re-load seed: %v", err)
	}
	providers, _ = env.providers.List(ctx, false)
	if len(providers) != 2 {
		t.Fatalf("re-load duplicated providers: %d", len(providers))
	}
}

func TestLoadSeedFileRejectsBadInput(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()
	dir := t.TempDir()

	if err := env.svc.loadSeedFile(ctx, filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("providers: {not-a-list"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := env.svc.loadSeedFile(ctx, bad); err == nil {
		t.Fatalf("expected parse error")
	}

	noAuth := filepath.Join(dir, "noauth.yaml")
	if err := os.WriteFile(noAuth, []byte("providers:\n  - name: broken\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := env.svc.loadSeedFile(ctx, noAuth); err == nil {
		t.Fatalf("expected validation error for provider without authUrl")
	}

	orphan := filepath.Join(dir, "orphan.yaml")
	if err := os.WriteFile(orphan, []byte("workshops:\n  - provider: ghost\n    name: w1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := env.svc.loadSeedFile(ctx, orphan); err == nil {
		t.Fatalf("expected error for unknown provider reference")
	}
}
