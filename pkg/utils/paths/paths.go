package paths

import (
	"os"
	"path/filepath"
)

// RelativeToExecutable resolves name against the current working directory
// first. If nothing exists there, it resolves to the file next to the
// running executable.
func RelativeToExecutable(name string) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}

	exePath, err := os.Executable()
	if err != nil {
		return name
	}
	if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
		exePath = resolved
	}

	return filepath.Join(filepath.Dir(exePath), name)
}
