package version

import "runtime/debug"

// Version information set via ldflags during build
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Variable for mocking in tests.
var readBuildInfo = debug.ReadBuildInfo

// FullVersion returns a formatted version string
func FullVersion() string {
	if Version != "dev" {
		return "ping " + Version + " (commit: " + GitCommit + ", built: " + BuildDate + ")"
	}
	// go install builds carry the module version instead of ldflags
	if info, ok := readBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return "ping " + info.Main.Version
	}
	return "ping development build"
}
