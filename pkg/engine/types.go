package engine

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiscoverySource identifies which discovery step produced a library reference.
// The numeric order of the constants is the discovery priority.
type DiscoverySource int

const (
	// SourceExtDir marks prebuilt libraries found directly in the ext directory.
	SourceExtDir DiscoverySource = iota

	// SourceAdditionalPath marks entries listed in the descriptor's additional-classpath.
	SourceAdditionalPath

	// SourceExtension marks top-level libraries of an extracted extension package.
	SourceExtension

	// SourcePlatform marks libraries of an extension's platform-specific subdirectory.
	SourcePlatform
)

// String returns a human-readable source name.
func (s DiscoverySource) String() string {
	switch s {
	case SourceExtDir:
		return "ext"
	case SourceAdditionalPath:
		return "additional-classpath"
	case SourceExtension:
		return "extension"
	case SourcePlatform:
		return "platform"
	default:
		return "unknown"
	}
}

// LibraryReference is one candidate entry for the load path.
type LibraryReference struct {
	// Path is the absolute path of the library file.
	Path string `json:"path"`

	// DisplayName is the deduplication key, the file's base name.
	DisplayName string `json:"display_name"`

	// Origin names the package or location that contributed this reference.
	Origin string `json:"origin"`

	// Source is the discovery step that produced this reference.
	Source DiscoverySource `json:"source"`
}

// NewLibraryReference builds a reference whose display name is the base name of path.
func NewLibraryReference(path, origin string, source DiscoverySource) LibraryReference {
	return LibraryReference{
		Path:        path,
		DisplayName: filepath.Base(path),
		Origin:      origin,
		Source:      source,
	}
}

// SkippedLibrary records a candidate dropped because its display name was already taken.
type SkippedLibrary struct {
	// Reference is the dropped candidate.
	Reference LibraryReference `json:"reference"`

	// KeptBy is the earlier reference that holds the display name.
	KeptBy LibraryReference `json:"kept_by"`
}

// ExtensionManifest is the optional extension.yaml carried at the root of an extension package.
type ExtensionManifest struct {
	Name        string `yaml:"name" json:"name,omitempty"`
	Version     string `yaml:"version" json:"version,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// ExtensionPackage is one extension archive resolved during the current run.
// It is never persisted; a new value is produced on every run.
type ExtensionPackage struct {
	// Name is derived from the archive filename without its archive suffix.
	Name string `json:"name"`

	// SourceArchive is the absolute path of the archive in the dist directory.
	SourceArchive string `json:"source_archive"`

	// ExtractionDir is the fresh directory under the run's temporary root.
	ExtractionDir string `json:"extraction_dir"`

	// Root is the extracted root directory reported by the extractor.
	Root string `json:"root"`

	// PlatformDir is the matching OS/architecture subdirectory, if any.
	PlatformDir string `json:"platform_dir,omitempty"`

	// NativeLibDir is the bin/lib subdirectory, if any.
	NativeLibDir string `json:"native_lib_dir,omitempty"`

	// Digest is the hex BLAKE3 digest of the source archive.
	Digest string `json:"digest,omitempty"`

	// Manifest is the parsed extension.yaml, if the package carries one.
	Manifest *ExtensionManifest `json:"manifest,omitempty"`

	// Libraries are the candidates this package contributed, in discovery order.
	Libraries []LibraryReference `json:"libraries"`

	// NativeInputs are the files found in NativeLibDir.
	NativeInputs []string `json:"native_inputs,omitempty"`
}

// Resolution is the output of extension resolution.
type Resolution struct {
	// Candidates are all library references in discovery order.
	Candidates []LibraryReference `json:"candidates"`

	// NativeInputs are native library files to stage, in discovery order.
	NativeInputs []string `json:"native_inputs"`

	// Packages are the extension packages processed, in discovery order.
	Packages []*ExtensionPackage `json:"packages"`

	// Warnings are the non-fatal errors absorbed during resolution.
	Warnings []error `json:"-"`
}

// ArchiveIndex renders the name=archive list exported to the launched application.
func (r *Resolution) ArchiveIndex() string {
	parts := make([]string, 0, len(r.Packages))
	for _, pkg := range r.Packages {
		parts = append(parts, filepath.Base(pkg.Root)+"="+pkg.SourceArchive)
	}
	return strings.Join(parts, ";")
}

// LoadPath is the final, deduplicated, ordered load path.
type LoadPath struct {
	// Entries are the surviving references in discovery order.
	Entries []LibraryReference `json:"entries"`

	// Skipped are the duplicates dropped during assembly.
	Skipped []SkippedLibrary `json:"skipped,omitempty"`

	// NativeDir is the staging directory exported for native library lookup.
	NativeDir string `json:"native_dir"`

	// StagedNative lists the files copied into NativeDir.
	StagedNative []string `json:"staged_native,omitempty"`
}

// Paths returns the entry paths in order.
func (lp *LoadPath) Paths() []string {
	paths := make([]string, len(lp.Entries))
	for i, entry := range lp.Entries {
		paths[i] = entry.Path
	}
	return paths
}

// String joins the entry paths with the platform list separator.
func (lp *LoadPath) String() string {
	return strings.Join(lp.Paths(), string(os.PathListSeparator))
}

// Lookup returns the entry with the given display name.
func (lp *LoadPath) Lookup(displayName string) (LibraryReference, bool) {
	for _, entry := range lp.Entries {
		if entry.DisplayName == displayName {
			return entry, true
		}
	}
	return LibraryReference{}, false
}

// BootScript is a pending one-time setup script found in the configuration directory.
type BootScript struct {
	// Path is the absolute path of the script.
	Path string `json:"path"`

	// Privileged is true for runOnceAsAdmin.* scripts.
	Privileged bool `json:"privileged"`

	// Elevated is true when the script was run through the privileged executor.
	Elevated bool `json:"elevated"`

	// Executed is set once the script has exited with status 0.
	Executed bool `json:"executed"`

	// ExitCode is the exit status of the last execution, -1 if it never started.
	ExitCode int `json:"exit_code"`

	// Duration is how long the script ran.
	Duration time.Duration `json:"duration"`
}

// Name returns the script's file name.
func (b BootScript) Name() string {
	return filepath.Base(b.Path)
}
