// Package version carries build metadata stamped in with -ldflags -X.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden at link time, e.g.
//
//	-ldflags "-X github.com/soyeahso/agentos/internal/version.Version=1.0.0"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build is the resolved build metadata.
type Build struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
}

// Current returns the link-time values, filling any left at their
// defaults from the module build info (set by go install and VCS builds).
func Current() Build {
	bi, _ := debug.ReadBuildInfo()
	return resolve(bi)
}

func resolve(bi *debug.BuildInfo) Build {
	b := Build{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}
	if bi == nil {
		return b
	}
	if b.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		b.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && b.Commit == "unknown":
			b.Commit = s.Value
		case s.Key == "vcs.time" && b.Date == "unknown":
			b.Date = s.Value
		}
	}
	return b
}

// Info returns a one-line version string.
func Info() string {
	b := Current()
	return fmt.Sprintf("agentos %s (commit: %s, built: %s, %s, %s/%s)",
		b.Version, short(b.Commit), b.Date, b.GoVersion, runtime.GOOS, runtime.GOARCH)
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
