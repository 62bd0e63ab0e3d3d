// Package version provides build-time version information for gqutils.
package version

import "fmt"

// Build-time variables set via ldflags.
var (
	// Version is the semantic version (e.g., "1.0.0").
	Version = "0.1.0"

	// Commit is the git commit hash.
	Commit = "unknown"

	// Date is the build date in RFC3339 format.
	Date = "unknown"
)

// String returns the version line printed by the CLI.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
