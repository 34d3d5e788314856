// Package version reports how an amanrag binary was built: its release,
// source revision, and the versions of the storage, indexing, and ingestion
// modules compiled into it.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version is set via ldflags at build time:
// -X github.com/Aman-CERP/amanrag/pkg/version.Version=$(VERSION)
var Version = "dev"

// Commit and Date are set via ldflags. When left unset they fall back to the
// VCS stamp the Go toolchain embeds.
var (
	Commit = "unknown"
	Date   = "unknown"
)

// Component is one module amanrag is built on.
type Component struct {
	Name    string `json:"name"`
	Module  string `json:"module"`
	Version string `json:"version"`
}

// components lists the modules behind each corpus subsystem, in display order.
var components = []Component{
	{Name: "sqlite-store", Module: "modernc.org/sqlite"},
	{Name: "postgres-store", Module: "github.com/jackc/pgx/v5"},
	{Name: "pgvector", Module: "github.com/pgvector/pgvector-go"},
	{Name: "vector-graph", Module: "github.com/coder/hnsw"},
	{Name: "folder-watcher", Module: "github.com/fsnotify/fsnotify"},
	{Name: "pdf-extractor", Module: "github.com/ledongthuc/pdf"},
	{Name: "corpus-lock", Module: "github.com/gofrs/flock"},
}

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version    string      `json:"version"`
	Commit     string      `json:"commit"`
	Date       string      `json:"date"`
	Modified   bool        `json:"modified,omitempty"`
	GoVersion  string      `json:"go_version"`
	OS         string      `json:"os"`
	Arch       string      `json:"arch"`
	Components []Component `json:"components,omitempty"`
}

// String returns the full version line.
func String() string {
	info := GetInfo()
	commit := info.Commit
	if info.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("amanrag %s (commit: %s, built: %s, go: %s)",
		info.Version, commit, info.Date, info.GoVersion)
}

// Short returns just the version.
func Short() string {
	return Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	bi, _ := debug.ReadBuildInfo()
	return fromBuildInfo(bi)
}

func fromBuildInfo(bi *debug.BuildInfo) BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi == nil {
		return info
	}
	if bi.GoVersion != "" {
		info.GoVersion = bi.GoVersion
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	info.Components = linked(bi.Deps)
	return info
}

// linked resolves the known components against the module graph. Replaced
// modules report the replacement's version.
func linked(deps []*debug.Module) []Component {
	versions := make(map[string]string, len(deps))
	for _, d := range deps {
		v := d.Version
		if d.Replace != nil {
			v = d.Replace.Version
		}
		versions[d.Path] = v
	}
	var out []Component
	for _, c := range components {
		if v, ok := versions[c.Module]; ok {
			c.Version = v
			out = append(out, c)
		}
	}
	return out
}

func shortRevision(rev string) string {
	rev = strings.TrimSpace(rev)
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
