// Package buildinfo carries version data stamped at link time:
//
//	go build -ldflags "-X pickbatch/internal/buildinfo.Version=v1.2.0 -X pickbatch/internal/buildinfo.Commit=$(git rev-parse HEAD)"
package buildinfo

import "runtime"

const Service = "pickbatch"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info describes the running binary.
type Info struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	BuiltAt string `json:"builtAt,omitempty"`
	Go      string `json:"go"`
}

func Get() Info {
	return Info{
		Service: Service,
		Version: Version,
		Commit:  Commit,
		BuiltAt: BuiltAt,
		Go:      runtime.Version(),
	}
}
