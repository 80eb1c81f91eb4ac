// Package version reports which build of fuego is running.
//
//	go build -ldflags "-X github.com/fuego-app/fuego/internal/version.Version=v1.2.0 \
//	  -X github.com/fuego-app/fuego/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

//nolint:gochecknoglobals // overwritten by the linker
var (
	Version = "dev"
	Commit  = ""
)

// String is the version followed by the short commit when one was linked in.
func String() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
