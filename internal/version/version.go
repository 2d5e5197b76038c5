// Package version holds build information stamped in with ldflags:
//
//	go build -ldflags "-X github.com/aquaice/livesync/internal/version.Version=1.2.0 \
//	                   -X github.com/aquaice/livesync/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String is the long form shown by the version command.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent identifies the client to the orders API and the socket server.
func UserAgent() string {
	return "livesync/" + Version
}
