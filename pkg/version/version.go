// Package version holds the build metadata of the rbtree binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Overridden at build time with -ldflags "-X github.com/bietje/RBtree/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build metadata. Development builds fall back to the
// module version recorded by the Go toolchain, if any.
func String() string {
	ver := Version

	if ver == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			ver = info.Main.Version
		}
	}

	return fmt.Sprintf("%s (commit: %s, built: %s)", ver, Commit, Date)
}
