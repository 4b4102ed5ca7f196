// Package buildinfo reports the version and VCS state of the running binary.
package buildinfo

import (
	"cmp"
	"log/slog"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
)

const defaultVersion = "devel"

// Version can be set at link time with:
//
//	-ldflags "-X github.com/fiam/jsonbind/pkg/jsonbind/buildinfo.Version=vX.Y.Z"
var Version = defaultVersion

type Info struct {
	Version    string `json:"version" xml:"version"`
	Commit     string `json:"commit,omitempty" xml:"commit"`
	CommitTime string `json:"commit_time,omitempty" xml:"commitTime"`
	Dirty      bool   `json:"dirty" xml:"dirty"`
	GoVersion  string `json:"go_version,omitempty" xml:"goVersion"`
}

// Line formats the info as a single "name key=value..." line, omitting
// unknown values.
func (i Info) Line(name string) string {
	parts := []string{name, "version=" + i.Version}
	if i.Commit != "" {
		parts = append(parts, "commit="+i.Commit, "dirty="+strconv.FormatBool(i.Dirty))
	}
	if i.CommitTime != "" {
		parts = append(parts, "commit_time="+i.CommitTime)
	}
	if i.GoVersion != "" {
		parts = append(parts, "go="+i.GoVersion)
	}
	return strings.Join(parts, " ")
}

func (i Info) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", i.Version),
		slog.String("commit", i.Commit),
		slog.Bool("dirty", i.Dirty),
		slog.String("go", i.GoVersion),
	)
}

var (
	current     Info
	currentOnce sync.Once
	readBuild   = debug.ReadBuildInfo
)

func Current() Info {
	currentOnce.Do(func() {
		current = detect()
	})
	return current
}

func detect() Info {
	info := Info{Version: strings.TrimSpace(Version)}
	if info.Version == "" {
		info.Version = defaultVersion
	}
	if buildInfo, ok := readBuild(); ok && buildInfo != nil {
		info = applyBuildInfo(info, buildInfo)
	}
	return info
}

func applyBuildInfo(info Info, buildInfo *debug.BuildInfo) Info {
	info.GoVersion = cmp.Or(buildInfo.GoVersion, info.GoVersion)
	if info.Version == defaultVersion && buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
		info.Version = buildInfo.Main.Version
	}
	if revision, ok := setting(buildInfo.Settings, "vcs.revision"); ok {
		info.Commit = revision
	}
	if vcsTime, ok := setting(buildInfo.Settings, "vcs.time"); ok {
		info.CommitTime = vcsTime
	}
	if modified, ok := setting(buildInfo.Settings, "vcs.modified"); ok {
		info.Dirty = strings.EqualFold(modified, "true")
	}
	return info
}

func setting(settings []debug.BuildSetting, key string) (string, bool) {
	idx := slices.IndexFunc(settings, func(s debug.BuildSetting) bool {
		return s.Key == key
	})
	if idx < 0 {
		return "", false
	}
	value := strings.TrimSpace(settings[idx].Value)
	return value, value != ""
}
