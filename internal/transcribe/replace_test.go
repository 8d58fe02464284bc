package transcribe

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replacements.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReplacerApply(t *testing.T) {
	path := writeRules(t, `{"gonna": "going to", "ok": "okay"}`)
	r, err := NewReplacer(path)
	if err != nil {
		t.Fatalf("new replacer: %v", err)
	}
	if !r.Enabled() {
		t.Fatal("replacer with rules must report enabled")
	}

	out, n := r.Apply("OK, I'm gonna go. Gonna be late. Tokyo is fine.")
	if n != 3 {
		t.Errorf("substitutions = %d, want 3", n)
	}
	want := "okay, I'm going to go. going to be late. Tokyo is fine."
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
}

func TestReplacerWholeWordsOnly(t *testing.T) {
	path := writeRules(t, `{"cat": "dog"}`)
	r, err := NewReplacer(path)
	if err != nil {
		t.Fatalf("new replacer: %v", err)
	}
	out, n := r.Apply("The cat sat on the catalog.")
	if out != "The dog sat on the catalog." || n != 1 {
		t.Errorf("out = %q, n = %d", out, n)
	}
}

func TestReplacerDisabled(t *testing.T) {
	r, err := NewReplacer("")
	if err != nil {
		t.Fatalf("new replacer: %v", err)
	}
	if r.Enabled() {
		t.Error("empty path must disable the replacer")
	}
	out, n := r.Apply("unchanged")
	if out != "unchanged" || n != 0 {
		t.Errorf("out = %q, n = %d", out, n)
	}
}

func TestReplacerMissingFile(t *testing.T) {
	if _, err := NewReplacer(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("missing rule file must fail at startup")
	}
}
