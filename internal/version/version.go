package version

// Version is the build version of the gateway.
// This value is set at build time using ldflags:
// -ldflags "-X github.com/shigeo-nakamura/dex-router/internal/version.Version=v1.2.3"
// The default value "main" indicates a development build.
var Version = "main"

// GetVersion returns the build version.
func GetVersion() string {
	return Version
}
