// Package version holds build metadata injected with -ldflags.
package version

import "runtime"

// Set at build time, e.g.
//
//	go build -ldflags "-X github.com/NERVsystems/osmnodes/pkg/version.BuildVersion=v0.1.0"
var (
	BuildVersion = "dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// UserAgent returns the default User-Agent for interpreter requests
func UserAgent() string {
	return "osmnodes/" + BuildVersion
}

// Info returns the build metadata as a map
func Info() map[string]string {
	return map[string]string{
		"version":    BuildVersion,
		"commit":     BuildCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}
