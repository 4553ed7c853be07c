// Package version holds build metadata injected with -ldflags.
package version

import (
	"runtime"
	"runtime/debug"
)

const name = "askvoice"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the full version line.
func String() string {
	return name + " " + resolved() + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// resolved prefers the injected version and falls back to the module
// version recorded by go install.
func resolved() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
