// Package version holds build-time version information for the fallback
// gateway binaries. The variables are injected via -ldflags:
//
// -X github.com/ferro-labs/llm-fallback/internal/version.Version=v0.1.0
// -X github.com/ferro-labs/llm-fallback/internal/version.Commit=abc1234
// -X github.com/ferro-labs/llm-fallback/internal/version.Date=2026-02-25T00:00:00Z
//
// Local builds without ldflags report dev values.
package version

import "fmt"

// Variables set at link time. Default to dev values.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns a single-line human-readable version string, e.g.:
//
// v0.1.0 (commit abc1234, built 2026-02-25T12:00:00Z)
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}

// Short returns just the version tag, e.g. "v0.1.0" or "dev".
func Short() string {
	return Version
}

// Info is the JSON shape served by the version endpoint and printed by the
// CLI with --json.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get returns the build information as an Info.
func Get() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}
