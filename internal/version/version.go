package version

import "fmt"

// Build metadata, stamped via -ldflags at release time. The defaults
// identify a local, untagged build.
var (
	// Version is the semantic version of this build.
	Version = "1.0.0"
	// Commit is the short git SHA the binary was built from.
	Commit = "none"
	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Short returns just the semantic version.
func Short() string {
	return Version
}

// Full returns the version together with the commit and build timestamp.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}
