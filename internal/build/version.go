package build

import "fmt"

// Set with -ldflags "-X github.com/rohmanhakim/crawl-engine/internal/build.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// FullVersion returns the version string with commit hash appended.
// Format: "Version+Commit" (e.g., "1.0.0+abc123")
func FullVersion() string {
	return Version + "+" + Commit
}

// Info is the line printed by the version command.
func Info(name string) string {
	return fmt.Sprintf("%s %s (built %s)", name, FullVersion(), BuildTime)
}
