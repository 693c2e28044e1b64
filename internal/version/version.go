// Package version carries build identification, stamped via -ldflags.
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

// String renders the full build identification line reported by the
// -version flag and by the simulator's version command.
func String() string {
	return fmt.Sprintf("bartbridge %s (%s, built %s)", Version, GitSHA, BuildTime)
}
