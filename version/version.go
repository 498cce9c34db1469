// Package version extracts build information embedded by the Go toolchain.
package version

import (
	"fmt"
	"runtime/debug"
)

// BuildInfo is the subset of build metadata the service reports.
type BuildInfo struct {
	GoVersion   string `json:"goVersion"`
	MainModule  string `json:"mainModule"`
	MainVersion string `json:"mainVersion"`
	Revision    string `json:"revision,omitempty"`
}

// Get reads the build information of the current binary.
func Get() *BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return &BuildInfo{GoVersion: "unknown", MainModule: "unknown", MainVersion: "unknown"}
	}

	out := &BuildInfo{
		GoVersion:   info.GoVersion,
		MainModule:  info.Path,
		MainVersion: info.Main.Version,
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			out.Revision = s.Value
		}
	}
	return out
}

// String renders the build information for the version command.
func String() string {
	b := Get()
	s := fmt.Sprintf("%s %s (%s)", b.MainModule, b.MainVersion, b.GoVersion)
	if b.Revision != "" {
		s += " " + b.Revision
	}
	return s
}
