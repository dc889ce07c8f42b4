// Package version holds the build version, overridable with
// -ldflags "-X fencetrack/pkg/version.Version=...".
package version

// Version is the release version of the server.
var Version = "v0.1.0"
