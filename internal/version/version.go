// Package version holds build metadata injected via ldflags:
//
//	-X github.com/codevoyager1984/math-agent/internal/version.Version=v1.2.0
package version

//nolint:revive // set via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the build metadata as printed by `ragserver version`.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get returns the build metadata of the running binary.
func Get() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}
