// Package version holds build metadata injected via ldflags.
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// UserAgent identifies curator on outbound requests.
func UserAgent() string {
	return "curator/" + Version + " (" + Commit + ")"
}
