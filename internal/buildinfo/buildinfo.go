// Package buildinfo exposes the version stamped into the binary.
package buildinfo

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// Set at build time via ldflags:
// -X meeting-copilot/internal/buildinfo.Version=v0.3.0
// -X meeting-copilot/internal/buildinfo.Commit=1a2b3c4
// -X meeting-copilot/internal/buildinfo.BuildTime=2026-10-01T09:00:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// ServiceName identifies this binary in logs and build info.
const ServiceName = "meeting-copilot"

type Info struct {
	ServiceName string `json:"service_name"`
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	BuildTime   string `json:"build_time"`
	GoVersion   string `json:"go_version"`
}

func Get() Info {
	return Info{
		ServiceName: ServiceName,
		Version:     Version,
		Commit:      Commit,
		BuildTime:   BuildTime,
		GoVersion:   runtime.Version(),
	}
}

// String returns a one-liner like "v0.3.0 (1a2b3c4, 2026-10-01T09:00:00Z)".
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// Handler responds with the build info as JSON.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Get())
	}
}
