package stentor

import (
	"fmt"
	"runtime"
)

// Version is the release the binary identifies itself as when build
// info carries no module version. Overridable at link time:
//
//	go build -ldflags "-X github.com/stentorlabs/stentor.Version=v1.2.3"
var Version = "0.1.0"

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// VersionInfo returns the running build's identity.
func VersionInfo() Info {
	return Info{
		Version:   Version,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("stentor %s (%s, %s)", i.Version, i.GoVersion, i.Platform)
}
