// Package version reports the psddp build identity.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/psddp/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/psddp/internal/version.Commit=abc1234"
var (
	Version = ""
	Commit  = ""
)

// Info is the resolved build identity
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get resolves the build identity. Values missing from ldflags are taken
// from the embedded VCS stamp, then fall back to "dev" and "unknown".
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(&info, bi)
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	return info
}

func fillFromBuildInfo(info *Info, bi *debug.BuildInfo) {
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	if info.Commit != "" {
		return
	}

	var revision string
	dirty := false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if dirty {
		revision += "-dirty"
	}
	info.Commit = revision
}

// String renders the identity for `psddp version`
func (i Info) String() string {
	return fmt.Sprintf("psddp %s (commit %s, %s, %s)", i.Version, i.Commit, i.GoVersion, i.Platform)
}

// Short returns the version without a leading "v", as advertised in
// feed TXT records.
func Short() string {
	return strings.TrimPrefix(Get().Version, "v")
}

// UserAgent is sent on account requests
func UserAgent() string {
	return "psddp/" + Short()
}
