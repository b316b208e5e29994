package governance

import (
	"errors"
	"testing"
)

func mustGuard(t *testing.T, p *Policy) *Guard {
	t.Helper()
	g, err := NewGuard(p)
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}
	return g
}

// TestAllowlistAcceptsAllowedCommand verifies allowed prefixes pass.
func TestAllowlistAcceptsAllowedCommand(t *testing.T) {
	g := mustGuard(t, &Policy{AllowedCommands: []string{"gcloud"}})
	if err := g.CheckCommand("gcloud compute instances list"); err != nil {
		t.Errorf("expected allowed, got: %v", err)
	}
}

// TestAllowlistRejectsUnlistedCommand verifies non-allowed commands are blocked.
func TestAllowlistRejectsUnlistedCommand(t *testing.T) {
	g := mustGuard(t, &Policy{AllowedCommands: []string{"gcloud storage"}})
	err := g.CheckCommand("gcloud compute instances list")
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
}

// TestPrefixMatchesWholeWords verifies "gcloud" does not match "gcloudx".
func TestPrefixMatchesWholeWords(t *testing.T) {
	g := mustGuard(t, &Policy{DeniedCommands: []string{"gcloud  projects delete"}})
	if err := g.CheckCommand("gcloud projects delete my-proj --quiet"); err == nil {
		t.Error("expected denial")
	}
	if err := g.CheckCommand("gcloud projects describe my-proj"); err != nil {
		t.Errorf("unexpected denial: %v", err)
	}
	if err := g.CheckCommand("gcloud"); err != nil {
		t.Errorf("shorter command must not match a longer prefix: %v", err)
	}
}

// TestCombinedAllowDenyMode verifies deny takes precedence.
func TestCombinedAllowDenyMode(t *testing.T) {
	g := mustGuard(t, &Policy{
		AllowedCommands: []string{"gcloud"},
		DeniedCommands:  []string{"gcloud compute instances delete"},
	})
	if err := g.CheckCommand("gcloud compute instances create vm"); err != nil {
		t.Errorf("create should pass: %v", err)
	}
	if err := g.CheckCommand("gcloud compute instances delete vm"); err == nil {
		t.Error("delete should be denied")
	}
	if err := g.CheckCommand("rm -rf /"); err == nil {
		t.Error("rm should be rejected (not in allowlist)")
	}
}

// TestNoGovernanceAllowsAll verifies that nil and empty guards permit everything.
func TestNoGovernanceAllowsAll(t *testing.T) {
	var nilGuard *Guard
	if err := nilGuard.CheckCommand("anything"); err != nil {
		t.Errorf("nil guard should allow all: %v", err)
	}
	if got := nilGuard.Redact("secret"); got != "secret" {
		t.Errorf("nil guard redacted: %q", got)
	}
	g := mustGuard(t, nil)
	if err := g.CheckCommand("anything"); err != nil {
		t.Errorf("empty guard should allow all: %v", err)
	}
}

// TestVariablePatternMatching verifies denied variable patterns.
func TestVariablePatternMatching(t *testing.T) {
	g := mustGuard(t, &Policy{DenyVariables: []string{"GOOGLE_*", "PATH"}})
	tests := []struct {
		name    string
		blocked bool
	}{
		{"GOOGLE_APPLICATION_CREDENTIALS", true},
		{"PATH", true},
		{"VM_NAME", false},
		{"ZONE", false},
	}
	for _, tt := range tests {
		err := g.CheckVariable(tt.name)
		if tt.blocked != (err != nil) {
			t.Errorf("CheckVariable(%q) = %v, blocked want %v", tt.name, err, tt.blocked)
		}
	}

	kept, blocked := g.FilterVariables(map[string]string{"PATH": "/tmp", "ZONE": "us", "GOOGLE_X": "1"})
	if len(kept) != 1 || kept["ZONE"] != "us" {
		t.Errorf("kept = %v", kept)
	}
	if len(blocked) != 2 || blocked[0] != "GOOGLE_X" || blocked[1] != "PATH" {
		t.Errorf("blocked = %v", blocked)
	}
}

func TestInvalidPatternsRejected(t *testing.T) {
	if _, err := NewGuard(&Policy{DenyVariables: []string{"["}}); err == nil {
		t.Error("expected bad glob to be rejected")
	}
	if _, err := NewGuard(&Policy{Redact: []RedactionRule{{Pattern: "("}}}); err == nil {
		t.Error("expected bad regexp to be rejected")
	}
}

func TestRedact(t *testing.T) {
	g := mustGuard(t, &Policy{Redact: []RedactionRule{
		{Pattern: `ya29\.[A-Za-z0-9_-]+`, Replace: "[REDACTED-TOKEN]"},
		{Pattern: `"private_key": "[^"]*"`, Replace: `"private_key": "***"`},
	}})
	got := g.Redact(`token ya29.abc-DEF_1 and "private_key": "-----BEGIN"`)
	want := `token [REDACTED-TOKEN] and "private_key": "***"`
	if got != want {
		t.Errorf("Redact = %q, want %q", got, want)
	}
}
