package version

import (
	"fmt"
	"os/exec"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/sonemaro/sifter/pkg/extract"
)

var (
	// These variables are set during build time
	Version     = "dev"
	BuildNumber = "unknown"
	BuildDate   = "unknown"
	GitCommit   = "unknown"
	GitBranch   = "unknown"
)

// BuildInfo contains build, runtime and search capability information
type BuildInfo struct {
	Version     string `json:"version"`
	SemVer      string `json:"semver"`
	BuildNumber string `json:"build_number"`
	BuildDate   string `json:"build_date"`

	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`

	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	NumCPU    int    `json:"num_cpu"`

	// Extractors lists the extensions read through a document extractor
	Extractors []string `json:"extractors"`

	// LocateCommand is the index database client found on PATH, if any
	LocateCommand string `json:"locate_command,omitempty"`

	BuildDeps []Module `json:"build_deps"`
}

// Module represents a Go module dependency
type Module struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// GetBuildInfo returns the build information of the running binary
func GetBuildInfo() BuildInfo {
	var deps []Module
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range buildInfo.Deps {
			deps = append(deps, Module{Path: dep.Path, Version: dep.Version})
		}
	}

	exts := extract.Default().Extensions()
	sort.Strings(exts)

	return BuildInfo{
		Version:       Version,
		SemVer:        strings.Split(Version, "-")[0],
		BuildNumber:   BuildNumber,
		BuildDate:     BuildDate,
		GitCommit:     GitCommit,
		GitBranch:     GitBranch,
		GoVersion:     runtime.Version(),
		Platform:      fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		NumCPU:        runtime.NumCPU(),
		Extractors:    exts,
		LocateCommand: locateCommand(),
		BuildDeps:     deps,
	}
}

func locateCommand() string {
	for _, name := range []string{"plocate", "locate"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// FullVersion returns a formatted string with complete version information
func FullVersion() string {
	info := GetBuildInfo()

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Sifter %s\n", info.Version))
	b.WriteString("========================================\n\n")

	b.WriteString("Version Information:\n")
	b.WriteString(fmt.Sprintf("  Version:      %s\n", info.Version))
	b.WriteString(fmt.Sprintf("  Semantic Ver: %s\n", info.SemVer))
	b.WriteString(fmt.Sprintf("  Build Number: %s\n", info.BuildNumber))
	b.WriteString(fmt.Sprintf("  Build Date:   %s\n", info.BuildDate))
	b.WriteString(fmt.Sprintf("  Commit:       %s (%s)\n", info.GitCommit, info.GitBranch))
	b.WriteString("\n")

	b.WriteString("Runtime:\n")
	b.WriteString(fmt.Sprintf("  Go Version:   %s\n", info.GoVersion))
	b.WriteString(fmt.Sprintf("  Platform:     %s\n", info.Platform))
	b.WriteString(fmt.Sprintf("  CPUs:         %d\n", info.NumCPU))
	b.WriteString("\n")

	b.WriteString("Search Capabilities:\n")
	b.WriteString(fmt.Sprintf("  Documents:    %s\n", strings.Join(info.Extractors, ", ")))
	if info.LocateCommand != "" {
		b.WriteString(fmt.Sprintf("  Index:        %s\n", info.LocateCommand))
	} else {
		b.WriteString("  Index:        not available\n")
	}
	b.WriteString("\n")

	if len(info.BuildDeps) > 0 {
		b.WriteString("Dependencies:\n")
		for _, dep := range info.BuildDeps[:min(5, len(info.BuildDeps))] {
			b.WriteString(fmt.Sprintf("  - %s@%s\n", dep.Path, dep.Version))
		}
		if len(info.BuildDeps) > 5 {
			b.WriteString(fmt.Sprintf("  ... and %d more\n", len(info.BuildDeps)-5))
		}
	}

	return b.String()
}
