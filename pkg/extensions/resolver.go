// Package extensions discovers the libraries that make up an application's
// load path: prebuilt libraries, additional entries named by the descriptor,
// and extension package archives extracted for this run.
package extensions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/openfroyo/bootstrap/pkg/archive"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// DefaultLibraryPatterns match the library files collected from extensions.
var DefaultLibraryPatterns = []string{"*.jar", "*.wasm"}

// ProgressFunc is called after each extension archive has been processed.
type ProgressFunc func(done, total int, archive string)

// Config configures a Resolver.
type Config struct {
	// LibraryPatterns select library files by base name.
	LibraryPatterns []string

	// Development tolerates a missing or empty dist directory.
	Development bool

	// Platform selects the platform-specific library directory.
	Platform Platform

	// Progress is optional.
	Progress ProgressFunc
}

// Resolver implements engine.ExtensionResolver.
type Resolver struct {
	config    Config
	extractor *archive.Extractor
	logger    *telemetry.Logger
	metrics   *telemetry.Metrics
}

// NewResolver creates a resolver. A zero Platform means the running platform.
func NewResolver(cfg Config, logger *telemetry.Logger, metrics *telemetry.Metrics) *Resolver {
	if len(cfg.LibraryPatterns) == 0 {
		cfg.LibraryPatterns = DefaultLibraryPatterns
	}
	if cfg.Platform == (Platform{}) {
		cfg.Platform = CurrentPlatform()
	}
	return &Resolver{
		config:    cfg,
		extractor: archive.NewExtractor(logger),
		logger:    logger.NewComponentLogger("extensions"),
		metrics:   metrics,
	}
}

// Resolve walks the discovery sources in order: the ext directory, the
// additional paths, then every archive in the dist directory. The temporary
// root is recreated first; an archive that fails to extract is recorded as a
// warning and skipped.
func (r *Resolver) Resolve(ctx context.Context, req engine.ResolveRequest) (*engine.Resolution, error) {
	tmpRoot, err := filepath.Abs(req.TmpRoot)
	if err != nil {
		return nil, engine.NewConfigurationError("cannot resolve temporary directory", err).WithPath(req.TmpRoot)
	}
	r.resetTmpRoot(tmpRoot)
	if err := os.MkdirAll(tmpRoot, 0o755); err != nil {
		return nil, engine.NewConfigurationError("cannot create temporary directory", err).WithPath(tmpRoot)
	}

	res := &engine.Resolution{}

	extLibs, err := r.libraries(req.ExtDir, "ext", engine.SourceExtDir)
	if err != nil {
		return nil, engine.NewConfigurationError("cannot read ext directory", err).WithPath(req.ExtDir)
	}
	res.Candidates = append(res.Candidates, extLibs...)

	res.Candidates = append(res.Candidates, r.additional(req.AdditionalPaths)...)

	archives, err := r.archives(req.DistDir)
	if err != nil {
		return nil, err
	}

	for i, path := range archives {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pkg, warnings, err := r.resolvePackage(ctx, path, tmpRoot)
		res.Warnings = append(res.Warnings, warnings...)
		if err != nil {
			r.logger.WithExtension(filepath.Base(path)).WithError(err).Warnf("Failed to extract extension %s", filepath.Base(path))
			r.metrics.RecordExtractionFailure()
			res.Warnings = append(res.Warnings, err)
		} else {
			res.Packages = append(res.Packages, pkg)
			res.Candidates = append(res.Candidates, pkg.Libraries...)
			res.NativeInputs = append(res.NativeInputs, pkg.NativeInputs...)
		}

		if r.config.Progress != nil {
			r.config.Progress(i+1, len(archives), filepath.Base(path))
		}
	}

	r.logger.Infof("Resolved %d candidates from %d extension packages", len(res.Candidates), len(res.Packages))
	return res, nil
}

// resetTmpRoot removes the previous run's temporary root. A failure is
// tolerated; stale files may then linger until the directory is freed.
func (r *Resolver) resetTmpRoot(tmpRoot string) {
	if err := os.RemoveAll(tmpRoot); err != nil {
		r.logger.WithError(err).Warnf(
			"Could not delete temporary directory %s; it may be in use. Remove it manually if the application misbehaves", tmpRoot)
	}
}

// archives lists the extension archives in distDir sorted by filename.
func (r *Resolver) archives(distDir string) ([]string, error) {
	abs, err := filepath.Abs(distDir)
	if err != nil {
		return nil, engine.NewConfigurationError("cannot resolve dist directory", err).WithPath(distDir)
	}

	entries, err := os.ReadDir(abs)
	if err != nil && !os.IsNotExist(err) {
		return nil, engine.NewConfigurationError("cannot read dist directory", err).WithPath(abs)
	}

	var archives []string
	for _, entry := range entries {
		if entry.IsDir() || !archive.IsArchive(entry.Name()) {
			continue
		}
		archives = append(archives, filepath.Join(abs, entry.Name()))
	}

	if len(archives) == 0 {
		if !r.config.Development {
			return nil, engine.NewConfigurationError("dist folder appears empty", nil).WithPath(abs)
		}
		r.logger.Warnf("No extension archives in %s; continuing in development mode", abs)
	}
	return archives, nil
}

func (r *Resolver) resolvePackage(ctx context.Context, path, tmpRoot string) (*engine.ExtensionPackage, []error, error) {
	name := archive.TrimSuffix(filepath.Base(path))
	logger := r.logger.WithExtension(name)
	logger.Infof("Loading extension archive %s", filepath.Base(path))

	pkg := &engine.ExtensionPackage{
		Name:          name,
		SourceArchive: path,
		ExtractionDir: filepath.Join(tmpRoot, name),
	}

	digest, err := Digest(path)
	if err != nil {
		return nil, nil, engine.NewExtractionError("cannot read archive", err).WithPath(path)
	}
	pkg.Digest = digest

	result, err := r.extractor.Extract(ctx, path, pkg.ExtractionDir)
	if err != nil {
		return nil, nil, err
	}
	r.metrics.RecordExtension(result.Written, len(result.Failures))
	pkg.Root = result.Root

	if pkg.Manifest, err = LoadManifest(pkg.Root); err != nil {
		logger.WithError(err).Warn("Ignoring unreadable extension manifest")
	}

	if pkg.Libraries, err = r.libraries(pkg.Root, name, engine.SourceExtension); err != nil {
		return nil, result.Failures, engine.NewExtractionError("cannot list extension libraries", err).WithPath(pkg.Root)
	}

	if dir := r.platformDir(pkg.Root); dir != "" {
		pkg.PlatformDir = dir
		logger.Debugf("Loading platform libraries from %s", dir)
		platformLibs, err := r.libraries(dir, name, engine.SourcePlatform)
		if err != nil {
			return nil, result.Failures, engine.NewExtractionError("cannot list platform libraries", err).WithPath(dir)
		}
		pkg.Libraries = append(pkg.Libraries, platformLibs...)
	}

	nativeDir := filepath.Join(pkg.Root, "bin", "lib")
	if natives, err := files(nativeDir); err == nil && len(natives) > 0 {
		pkg.NativeLibDir = nativeDir
		pkg.NativeInputs = natives
	}

	for _, lib := range pkg.Libraries {
		logger.Debugf("Found library %s", lib.Path)
	}
	return pkg, result.Failures, nil
}

// platformDir returns the first existing platform directory under root.
func (r *Resolver) platformDir(root string) string {
	for _, rel := range r.config.Platform.Candidates() {
		dir := filepath.Join(root, rel)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}

// libraries lists the library files directly in dir, sorted by name.
// A missing directory yields none.
func (r *Resolver) libraries(dir, origin string, source engine.DiscoverySource) ([]engine.LibraryReference, error) {
	paths, err := files(dir)
	if err != nil {
		return nil, err
	}

	var refs []engine.LibraryReference
	for _, path := range paths {
		if r.isLibrary(filepath.Base(path)) {
			refs = append(refs, engine.NewLibraryReference(path, origin, source))
		}
	}
	return refs, nil
}

// additional expands the descriptor's additional paths in listed order.
// Entries that match nothing are skipped.
func (r *Resolver) additional(entries []string) []engine.LibraryReference {
	var refs []engine.LibraryReference
	for _, entry := range entries {
		matches, err := expand(entry)
		if err != nil {
			r.logger.WithError(err).Warnf("Invalid additional path pattern %s", entry)
			continue
		}
		if len(matches) == 0 {
			r.logger.Debugf("Additional path %s does not exist", entry)
			continue
		}
		for _, path := range matches {
			refs = append(refs, engine.NewLibraryReference(path, "additional-classpath", engine.SourceAdditionalPath))
		}
	}
	return refs
}

func (r *Resolver) isLibrary(name string) bool {
	for _, pattern := range r.config.LibraryPatterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// expand returns the absolute paths an additional-path entry refers to.
func expand(entry string) ([]string, error) {
	if !strings.ContainsAny(entry, "*?[{") {
		abs, err := filepath.Abs(entry)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, nil
		}
		return []string{abs}, nil
	}

	if !doublestar.ValidatePathPattern(entry) {
		return nil, fmt.Errorf("bad pattern %q", entry)
	}
	matches, err := doublestar.FilepathGlob(entry, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	for i, m := range matches {
		if matches[i], err = filepath.Abs(m); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

// files lists the regular files directly in dir in name order.
func files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths, nil
}
