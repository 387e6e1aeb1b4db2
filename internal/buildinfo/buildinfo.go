// Package buildinfo stores build-time metadata shared across packages.
package buildinfo

var (
	// Version is set via ldflags during build. Defaults to "dev".
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "none"
)
