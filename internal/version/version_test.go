package version

import (
	"testing"

	"github.com/fatih/color"
)

func TestVersion_DefaultValues(t *testing.T) {
	if Version == "" {
		t.Error("Version should have a default value")
	}
}

func TestColored(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	cases := []struct {
		in   string
		want string
	}{
		{"0.1.0", "0.1.0"},
		{"1.2.3-rc.1+build.123", "1.2.3-rc.1+build.123"},
		{"dev", "dev"},
		{"1.2", "1.2"},
	}
	for _, tc := range cases {
		if got := Colored(tc.in); got != tc.want {
			t.Errorf("Colored(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	color.NoColor = false
	if got := Colored("1.2.3"); got == "1.2.3" {
		t.Errorf("expected escape codes with colours enabled, got %q", got)
	}
}

func TestCommitOverride(t *testing.T) {
	orig := GitCommit
	defer func() { GitCommit = orig }()

	GitCommit = "abc123def456"
	if got := Commit(); got != "abc123def456" {
		t.Errorf("Commit() = %q, want the link-time value", got)
	}
}
