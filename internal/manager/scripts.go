package manager

import "embed"

// The interpreter scripts ship inside the binary and are materialized into a
// private temp file per call, so they run standalone under a user-chosen
// interpreter regardless of where the daemon was installed.

//go:embed scripts/*.py
var scriptFS embed.FS

// Script returns the embedded script body by name (e.g. "transcribe.py").
func Script(name string) ([]byte, error) {
	b, err := scriptFS.ReadFile("scripts/" + name)
	if err != nil {
		return nil, ErrScriptNotFound(name)
	}
	return b, nil
}
