package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRelativeToExecutable(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "index.js")
	if err := os.WriteFile(existing, []byte("//"), 0644); err != nil {
		t.Fatal(err)
	}

	if got := RelativeToExecutable(existing); got != existing {
		t.Errorf("RelativeToExecutable(%q) = %q, want unchanged", existing, got)
	}

	missing := "definitely-not-here.js"
	got := RelativeToExecutable(missing)
	if filepath.Base(got) != missing {
		t.Errorf("RelativeToExecutable(%q) = %q, want file named %q", missing, got, missing)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("RelativeToExecutable(%q) = %q, want an absolute path next to the executable", missing, got)
	}
}
