package version

import "runtime/debug"

var version = "dev"

// Version returns the module version from build info, or the value set by
// -ldflags / Set for local builds.
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Sum != "" {
		return info.Main.Version
	}
	return version
}

// Revision is the VCS revision stamped by the go tool, shortened to 12 characters.
func Revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}

// Set overrides the fallback version.
func Set(v string) {
	if v != "" {
		version = v
	}
}
