// Package version identifies the build. Version and Commit are set with
// -ldflags "-X github.com/keshon/botcore/internal/version.Version=...".
package version

const (
	AppName        = "botcore"
	AppDescription = "Discord bot core with text and slash commands, role based permissions and pluggable modules."
)

var (
	Version = "dev"
	Commit  = "none"
)
