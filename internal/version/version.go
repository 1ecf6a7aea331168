// Package version exposes the build version injected at link time.
package version

var version = "v0.0.0"

// Value returns the build version.
func Value() string {
	return version
}
