package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the version of the CLI
	Version = "0.1.0"
	// GitCommit is set with -ldflags at build time
	GitCommit = "unknown"
)

// Info holds version information
type Info struct {
	Version   string
	GitCommit string
	GoVersion string
	Platform  string
}

// Get returns version information
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a formatted version string
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, %s %s)", i.Version, i.GitCommit, i.Platform, i.GoVersion)
}
