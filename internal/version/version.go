// Package version exposes build metadata stamped via -ldflags.
package version

var (
	// Version is the semantic version of the build.
	Version = "0.1.0"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// GitCommit is the abbreviated commit hash the binary was built from.
	GitCommit = "unknown"
)
