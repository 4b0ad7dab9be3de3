package extensions

import (
	"path/filepath"
	"runtime"
)

// Platform identifies the OS family and architecture used to pick an
// extension's platform-specific library directory.
type Platform struct {
	OS   string
	Arch string
}

// CurrentPlatform returns the platform of the running process.
func CurrentPlatform() Platform {
	return PlatformFor(runtime.GOOS, runtime.GOARCH)
}

// PlatformFor maps a GOOS/GOARCH pair onto the directory naming used by
// extension packages.
func PlatformFor(goos, goarch string) Platform {
	return Platform{OS: osFamily(goos), Arch: goarch}
}

func osFamily(goos string) string {
	switch goos {
	case "windows":
		return "win"
	case "darwin":
		return "osx"
	case "linux":
		return "linux"
	default:
		return "unknown"
	}
}

var archAliases = map[string][]string{
	"amd64": {"x86_64"},
	"arm64": {"aarch64"},
	"386":   {"x86", "i386"},
}

// Candidates lists the relative platform directories to probe, most specific
// first: the Go architecture name, then its conventional aliases.
func (p Platform) Candidates() []string {
	names := append([]string{p.Arch}, archAliases[p.Arch]...)
	dirs := make([]string, 0, len(names))
	for _, arch := range names {
		dirs = append(dirs, filepath.Join(p.OS, arch))
	}
	return dirs
}

// String returns the platform as os/arch.
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}
