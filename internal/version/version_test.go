package version

import (
	"strings"
	"testing"
)

func TestShort(t *testing.T) {
	origVersion, origCommit := Version, Commit
	defer func() { Version, Commit = origVersion, origCommit }()

	Version, Commit = "v1.0.0", "unknown"
	if got := Short(); got != "v1.0.0" {
		t.Errorf("Short() = %q, want %q", got, "v1.0.0")
	}

	Commit = "0123456789abcdef"
	if got := Short(); got != "v1.0.0 (0123456)" {
		t.Errorf("Short() = %q, want %q", got, "v1.0.0 (0123456)")
	}
}

func TestInfoString(t *testing.T) {
	s := Get().String()
	if !strings.HasPrefix(s, "textsynth ") {
		t.Errorf("String() = %q, want textsynth prefix", s)
	}
	if !strings.Contains(s, "go version: go") {
		t.Errorf("String() = %q, missing go version", s)
	}
}
