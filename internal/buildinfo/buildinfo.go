// Package buildinfo reports the version of the running brood binary.
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

const devVersion = "dev"

// Set with -ldflags "-X github.com/agusx1211/brood/internal/buildinfo.Version=...".
var (
	Version    = devVersion
	CommitHash = ""
	BuildDate  = ""
)

// Info is normalized build metadata.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit"`
	BuildDate  string `json:"buildDate"`
}

// String renders a one-line version banner.
func (i Info) String() string {
	commit := i.CommitHash
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, commit, i.BuildDate)
}

// vcs holds the settings the Go toolchain stamps into the binary.
type vcs struct {
	module   string
	revision string
	time     string
	dirty    bool
}

func readVCS() vcs {
	var v vcs
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return v
	}
	if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		v.module = bi.Main.Version
	}
	for _, s := range bi.Settings {
		val := strings.TrimSpace(s.Value)
		switch s.Key {
		case "vcs.revision":
			v.revision = val
		case "vcs.time":
			v.time = val
		case "vcs.modified":
			v.dirty = strings.EqualFold(val, "true")
		}
	}
	return v
}

// Current merges linker overrides with the toolchain's build settings.
// Overrides win; anything still empty becomes "unknown".
func Current() Info {
	return resolve(Version, CommitHash, BuildDate, readVCS())
}

func resolve(version, commit, date string, v vcs) Info {
	info := Info{
		Version:    strings.TrimSpace(version),
		CommitHash: strings.TrimSpace(commit),
		BuildDate:  strings.TrimSpace(date),
	}
	if (info.Version == "" || info.Version == devVersion) && v.module != "" {
		info.Version = v.module
	}
	if info.CommitHash == "" && v.revision != "" {
		info.CommitHash = v.revision
		if v.dirty {
			info.CommitHash += "-dirty"
		}
	}
	if info.BuildDate == "" {
		info.BuildDate = v.time
	}
	if t, err := time.Parse(time.RFC3339, info.BuildDate); err == nil {
		info.BuildDate = t.UTC().Format("2006-01-02 15:04:05 UTC")
	}

	for _, f := range []*string{&info.Version, &info.CommitHash, &info.BuildDate} {
		if *f == "" {
			*f = "unknown"
		}
	}
	return info
}
