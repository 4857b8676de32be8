// Package version exposes build-time version metadata.
//
// The variables are populated by the linker via -ldflags at release
// build time and default to development placeholders otherwise.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Full returns a single human-readable version string suitable for
// startup logs and status endpoints.
func Full() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
