package version

// Build holds the build identifier, injected via -ldflags. Default "dev".
var Build = "dev"

// String returns the identifier reported by the binaries' -version flag.
func String(binary string) string {
	return binary + " " + Build
}
