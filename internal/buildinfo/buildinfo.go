// Package buildinfo holds version data stamped at link time:
//
//	go build -ldflags "-X fleetopt/internal/buildinfo.Version=v1.2.0 -X fleetopt/internal/buildinfo.Commit=$(git rev-parse HEAD)"
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info falls back to the VCS revision recorded by the Go toolchain when Commit was not stamped.
func Info() map[string]string {
	out := map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out["go"] = bi.GoVersion
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && out["commit"] == "":
				out["commit"] = s.Value
			case s.Key == "vcs.time" && out["builtAt"] == "":
				out["builtAt"] = s.Value
			}
		}
	}
	return out
}
