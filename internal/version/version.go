// Package version holds build information set at link time.
package version

// Version is overridden with -ldflags "-X github.com/rimkus-dev/sentiment/internal/version.Version=...".
var Version = "dev"
