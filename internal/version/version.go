// Package version holds the build version, overridable with
// -ldflags "-X github.com/sudomakeinstall/cardio/internal/version.Version=..."
package version

// Version of the cardio build
var Version = "0.4.0-dev"

// Producer is the software name written into generated files
func Producer() string {
	return "cardio " + Version
}
