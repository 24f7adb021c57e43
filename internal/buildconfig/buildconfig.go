package buildconfig

import "fmt"

// Set with -ldflags "-X github.com/Harshitk-cp/soulgarden/internal/buildconfig.version=..."
var (
	version = "dev"
	commit  = "unknown"
)

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func Version() string {
	return version
}

func Commit() string {
	return commit
}

func Get() Info {
	return Info{Version: version, Commit: commit}
}

func (i Info) String() string {
	return fmt.Sprintf("soulgarden %s (%s)", i.Version, i.Commit)
}
