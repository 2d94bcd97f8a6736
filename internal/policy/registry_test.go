package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bantzhq/bantz/pkg/models"
)

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	doc := `{
		// comments are allowed
		"tool_levels": {
			"calendar.list_events": "safe",
			"calendar.delete_event": "destructive",
			"web.search": "moderate"
		},
		"always_confirm_tools": ["web.search"],
		"undefined_tool_policy": "moderate"
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	if err := r.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := r.Current()
	if got := snap.RiskOf("calendar.delete_event"); got != models.RiskDestructive {
		t.Errorf("RiskOf(delete_event) = %s, want destructive", got)
	}
	if got := snap.RiskOf("never.registered"); got != models.RiskModerate {
		t.Errorf("undefined policy moderate: RiskOf = %s, want moderate", got)
	}
	if !snap.AlwaysConfirm("web.search") {
		t.Error("web.search should be in always-confirm set")
	}
}

func TestUndefinedToolDefaultsToDeny(t *testing.T) {
	r := NewRegistry()
	if got := r.Current().RiskOf("never.registered"); got != models.RiskDestructive {
		t.Errorf("RiskOf(unknown) = %s, want destructive under deny policy", got)
	}
}

func TestMissingFileKeepsFallback(t *testing.T) {
	r := NewRegistry()
	if err := r.Load(filepath.Join(t.TempDir(), "nope.json")); err != nil {
		t.Fatalf("missing file must not be an error, got %v", err)
	}
	if got := r.Current().RiskOf("calendar.delete_event"); got != models.RiskDestructive {
		t.Errorf("fallback table should classify delete_event destructive, got %s", got)
	}
}

func TestRequiresConfirmation(t *testing.T) {
	snap := fallbackSnapshot()

	tests := []struct {
		tool      string
		requested bool
		want      bool
	}{
		{"calendar.delete_event", false, true}, // destructive always confirms
		{"calendar.delete_event", true, true},
		{"gmail.send_message", false, true}, // always-confirm set
		{"calendar.list_events", false, false},
		{"calendar.list_events", true, true}, // planner's request stands
		{"calendar.create_event", false, false},
	}

	for _, tt := range tests {
		if got := snap.RequiresConfirmation(tt.tool, tt.requested); got != tt.want {
			t.Errorf("RequiresConfirmation(%s, %v) = %v, want %v", tt.tool, tt.requested, got, tt.want)
		}
	}
}

func TestReloadIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	if err := os.WriteFile(path, []byte(`{"tool_levels": {"a.b": "safe"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	before := r.Current()
	if err := r.Load(path); err != nil {
		t.Fatal(err)
	}
	after := r.Current()

	if before == after {
		t.Fatal("reload must install a new snapshot")
	}
	// The old snapshot stays valid for readers that captured it.
	if got := before.RiskOf("calendar.delete_event"); got != models.RiskDestructive {
		t.Errorf("captured snapshot changed after reload: %s", got)
	}
}

func TestBadLevelRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	if err := os.WriteFile(path, []byte(`{"tool_levels": {"a.b": "spicy"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	if err := r.Load(path); err == nil {
		t.Fatal("unknown risk level must be rejected")
	}
}

func TestConfirmationPrompt(t *testing.T) {
	snap := fallbackSnapshot()

	got := snap.ConfirmationPrompt("calendar.delete_event", map[string]any{"title": "Sprint"})
	want := "'Sprint' etkinliği silinsin mi? (evet/hayır)"
	if got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}

	// Missing parameter falls back to the generic form.
	got = snap.ConfirmationPrompt("calendar.delete_event", nil)
	want = "calendar.delete_event çalıştırılsın mı? (evet/hayır)"
	if got != want {
		t.Errorf("fallback prompt = %q, want %q", got, want)
	}

	// Unknown tool gets the generic form too.
	got = snap.ConfirmationPrompt("fs.delete", map[string]any{"path": "/tmp/x"})
	want = "fs.delete çalıştırılsın mı? (evet/hayır)"
	if got != want {
		t.Errorf("generic prompt = %q, want %q", got, want)
	}
}
