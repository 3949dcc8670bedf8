package config

import "fmt"

// Set at link time, for example:
//
//	go build -ldflags "-X roadcast/internal/config.version=1.2.3 \
//	    -X roadcast/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X roadcast/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// String renders the build info as "version (commit, built time)".
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (%s, built %s)", b.Version, b.Commit, b.BuildTime)
}
