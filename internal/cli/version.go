package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Overridden with -ldflags "-X github.com/lazypower/lattice/internal/cli.Version=...".
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// buildInfo describes the running binary.
type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"goVersion"`
}

// readBuildInfo fills fields not set by ldflags from the module's embedded
// VCS stamps.
func readBuildInfo(bi *debug.BuildInfo, ok bool) buildInfo {
	info := buildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
	if !ok || bi == nil {
		return info.withDefaults()
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	if bi.GoVersion != "" {
		info.GoVersion = bi.GoVersion
	}
	return info.withDefaults()
}

func (b buildInfo) withDefaults() buildInfo {
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	if len(b.Commit) > 12 {
		b.Commit = b.Commit[:12]
	}
	if b.BuildDate == "" {
		b.BuildDate = "unknown"
	}
	return b
}

func currentBuild() buildInfo {
	return readBuildInfo(debug.ReadBuildInfo())
}

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentBuild()
		if versionJSON {
			return printJSON(cmd.OutOrStdout(), info)
		}
		dirty := ""
		if info.Modified {
			dirty = "-dirty"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "lattice %s (commit %s%s, built %s, %s)\n",
			info.Version, info.Commit, dirty, info.BuildDate, info.GoVersion)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print as JSON")
}

// VersionString is the short form reported by /api/health and MCP.
func VersionString() string {
	info := currentBuild()
	return fmt.Sprintf("%s (%s)", info.Version, info.Commit)
}
