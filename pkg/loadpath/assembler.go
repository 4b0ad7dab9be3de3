// Package loadpath turns the resolver's candidate list into the final load
// path and stages native libraries into a single flat directory.
package loadpath

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// Assembler implements engine.LoadPathAssembler.
type Assembler struct {
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewAssembler creates an assembler.
func NewAssembler(logger *telemetry.Logger, metrics *telemetry.Metrics) *Assembler {
	return &Assembler{
		logger:  logger.NewComponentLogger("loadpath"),
		metrics: metrics,
	}
}

// Assemble keeps the first candidate for each display name, in discovery
// order, and copies every native input flat into stagingDir. stagingDir is
// recreated empty first. A native input that cannot be copied is logged and
// left out.
func (a *Assembler) Assemble(candidates []engine.LibraryReference, nativeInputs []string, stagingDir string) (*engine.LoadPath, error) {
	lp := &engine.LoadPath{}

	seen := make(map[string]engine.LibraryReference, len(candidates))
	for _, ref := range candidates {
		if kept, ok := seen[ref.DisplayName]; ok {
			a.logger.Infof("%s has already been included by %s", ref.DisplayName, kept.Origin)
			lp.Skipped = append(lp.Skipped, engine.SkippedLibrary{Reference: ref, KeptBy: kept})
			continue
		}
		seen[ref.DisplayName] = ref
		lp.Entries = append(lp.Entries, ref)
	}

	dir, err := filepath.Abs(stagingDir)
	if err != nil {
		return nil, engine.NewConfigurationError("cannot resolve native library directory", err).WithPath(stagingDir)
	}
	if err := os.RemoveAll(dir); err != nil {
		a.logger.WithError(err).Warnf("Could not clear native library directory %s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, engine.NewConfigurationError("cannot create native library directory", err).WithPath(dir)
	}
	lp.NativeDir = dir

	for _, src := range nativeInputs {
		dst := filepath.Join(dir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			a.logger.WithError(err).Warnf("Failed to stage native library %s", src)
			continue
		}
		a.logger.Debugf("Staged native library %s", filepath.Base(src))
		lp.StagedNative = append(lp.StagedNative, dst)
	}

	for _, entry := range lp.Entries {
		a.logger.Debugf("Load path: %s", entry.Path)
	}
	a.metrics.RecordLoadPath(len(lp.Entries), len(lp.Skipped), len(lp.StagedNative))
	return lp, nil
}

// copyFile copies src to dst, keeping the source permissions and mtime.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file")
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
