// Package archive extracts extension package archives.
package archive

import (
	"strings"
)

// Format identifies an archive container and its compression.
type Format string

const (
	FormatZip     Format = "zip"
	FormatTar     Format = "tar"
	FormatTarGz   Format = "tar.gz"
	FormatTarXz   Format = "tar.xz"
	FormatTarZstd Format = "tar.zst"
	FormatUnknown Format = ""
)

// suffixes is ordered so that compound suffixes are tried before ".tar".
var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tgz", FormatTarGz},
	{".tar.xz", FormatTarXz},
	{".txz", FormatTarXz},
	{".tar.zst", FormatTarZstd},
	{".tzst", FormatTarZstd},
	{".tar", FormatTar},
	{".zip", FormatZip},
}

// FormatOf returns the archive format implied by the file name.
func FormatOf(name string) Format {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format
		}
	}
	return FormatUnknown
}

// IsArchive reports whether name has a supported archive suffix.
func IsArchive(name string) bool {
	return FormatOf(name) != FormatUnknown
}

// TrimSuffix strips the archive suffix from a file name, giving the package name.
func TrimSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return name[:len(name)-len(s.suffix)]
		}
	}
	return name
}
