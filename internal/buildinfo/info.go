// Package buildinfo holds version information injected at link time, e.g.
// -ldflags "-X github.com/darmiel/kartei/internal/buildinfo.Version=v1.2.0".
package buildinfo

import "runtime"

var (
	Version    = "v0.1.0-dev"
	CommitHash = "unknown"
)

type Info struct {
	About      string `json:"about,omitempty"`
	Service    string `json:"service,omitempty"`
	Version    string `json:"version,omitempty"`
	CommitHash string `json:"commit_hash,omitempty"`
	GoVersion  string `json:"go_version,omitempty"`
}

func GetBuildInfo() Info {
	return Info{
		About:      "https://github.com/darmiel/kartei",
		Service:    "Kartei",
		Version:    Version,
		CommitHash: CommitHash,
		GoVersion:  runtime.Version(),
	}
}
