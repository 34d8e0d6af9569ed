// Package version exposes build metadata for gpuprof.
package version

import (
	"log/slog"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the gpuprof version, set via ldflags.
	Version string
	// BuildDate is when the shared library was built, set via ldflags.
	BuildDate string

	// Revision is the git commit revision.
	Revision = getRevision()
	// GoVersion is the Go version used to build.
	GoVersion = runtime.Version()
	// GoOS is the operating system target.
	GoOS = runtime.GOOS
	// GoArch is the architecture target.
	GoArch = runtime.GOARCH
)

// Attr returns the build metadata as a "build" log group.
func Attr() slog.Attr {
	attrs := []any{
		slog.String("revision", Revision),
		slog.String("go", GoVersion),
		slog.String("platform", GoOS+"/"+GoArch),
	}

	if Version != "" {
		attrs = append([]any{slog.String("version", Version)}, attrs...)
	}

	if BuildDate != "" {
		attrs = append(attrs, slog.String("date", BuildDate))
	}

	return slog.Group("build", attrs...)
}

func getRevision() string {
	rev := "unknown"

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return rev
	}

	modified := false

	for _, v := range buildInfo.Settings {
		switch v.Key {
		case "vcs.revision":
			rev = v.Value
		case "vcs.modified":
			if v.Value == "true" {
				modified = true
			}
		}
	}

	if modified {
		return rev + "-dirty"
	}

	return rev
}
