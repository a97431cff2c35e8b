package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const unknownStr = "unknown"

// Build information, set with -ldflags
var (
	Version   = "dev"
	Commit    = unknownStr
	BuildDate = unknownStr
)

// VersionInfo describes the running binary
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information of the running binary
func GetVersionInfo() VersionInfo {
	return versionInfo(Version, Commit, BuildDate, debug.ReadBuildInfo)
}

func versionInfo(version, commit, buildDate string, readBuildInfo func() (*debug.BuildInfo, bool)) VersionInfo {
	if strings.HasPrefix(version, "dev") && readBuildInfo != nil {
		if info, ok := readBuildInfo(); ok {
			for _, setting := range info.Settings {
				switch {
				case setting.Key == "vcs.revision" && commit == unknownStr:
					commit = setting.Value
				case setting.Key == "vcs.time" && buildDate == unknownStr:
					buildDate = setting.Value
				}
			}
		}
	}

	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = t.Format("2006-01-02 15:04:05 MST")
	}

	if version == "dev" {
		version = fmt.Sprintf("build-%.*s", 8, commit)
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
