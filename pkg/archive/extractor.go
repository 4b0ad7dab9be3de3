package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// Result describes one extraction.
type Result struct {
	// Root is the top-level directory of the first directory entry, or the
	// destination root when the archive has no directory entries.
	Root string

	// Written counts the entries materialised on disk.
	Written int

	// Failures holds one EntryWriteError per entry that could not be written.
	Failures []error

	// Outside lists the files written outside Root, by entry name. Nothing
	// in them is visible to resolution.
	Outside []string
}

// Extractor unpacks archives into a destination directory.
type Extractor struct {
	logger *telemetry.Logger
}

// NewExtractor creates an extractor that logs through logger.
func NewExtractor(logger *telemetry.Logger) *Extractor {
	return &Extractor{logger: logger.NewComponentLogger("archive")}
}

// Extract unpacks archivePath into destRoot.
//
// A failure on a single entry is logged, recorded in the result and skipped.
// The call fails only when the archive cannot be opened or its entry stream
// cannot be read; that error is an ExtractionError.
func (e *Extractor) Extract(ctx context.Context, archivePath, destRoot string) (*Result, error) {
	dest, err := filepath.Abs(destRoot)
	if err != nil {
		return nil, engine.NewExtractionError("cannot resolve destination", err).WithPath(destRoot)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, engine.NewExtractionError("cannot create destination", err).WithPath(dest)
	}

	w := &writer{dest: dest, logger: e.logger.WithField("archive", filepath.Base(archivePath))}

	switch format := FormatOf(archivePath); format {
	case FormatZip:
		err = w.unzip(ctx, archivePath)
	case FormatUnknown:
		err = fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	default:
		err = w.untar(ctx, archivePath, format)
	}
	if err != nil {
		var bootErr *engine.BootstrapError
		if errors.As(err, &bootErr) {
			return nil, bootErr
		}
		return nil, engine.NewExtractionError("cannot extract archive", err).WithPath(archivePath)
	}

	if w.result.Root == "" {
		w.result.Root = dest
	}
	for _, f := range w.files {
		if f.path != w.result.Root && !strings.HasPrefix(f.path, w.result.Root+string(os.PathSeparator)) {
			w.result.Outside = append(w.result.Outside, f.name)
		}
	}
	if n := len(w.result.Outside); n > 0 {
		w.logger.Warnf("%d files lie outside extension root %s and are ignored (first: %s)",
			n, w.result.Root, w.result.Outside[0])
	}
	w.logger.Debugf("Extracted %d entries to %s (%d failed)", w.result.Written, dest, len(w.result.Failures))
	return &w.result, nil
}

// writer materialises entries under dest and accumulates the result.
type writer struct {
	dest   string
	logger *telemetry.Logger
	result Result
	files  []writtenFile
}

type writtenFile struct {
	name string
	path string
}

// target maps an entry name to a path under dest, rejecting names that escape it.
func (w *writer) target(name string) (string, error) {
	clean := filepath.FromSlash(strings.TrimPrefix(name, "./"))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("absolute entry path")
	}
	path := filepath.Join(w.dest, clean)
	if path != w.dest && !strings.HasPrefix(path, w.dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry path escapes destination")
	}
	return path, nil
}

// noteDir records the root from the first directory entry.
func (w *writer) noteDir(name string) {
	if w.result.Root != "" {
		return
	}
	top := strings.SplitN(strings.TrimPrefix(filepath.ToSlash(name), "./"), "/", 2)[0]
	if top == "" || top == "." {
		return
	}
	w.result.Root = filepath.Join(w.dest, filepath.FromSlash(top))
}

func (w *writer) fail(name string, err error) {
	entryErr := engine.NewEntryWriteError(fmt.Sprintf("cannot write entry %s", name), err).WithPath(name)
	w.logger.WithError(err).Warnf("Skipping archive entry %s", name)
	w.result.Failures = append(w.result.Failures, entryErr)
}

func (w *writer) writeDir(name string, modTime time.Time) {
	path, err := w.target(name)
	if err != nil {
		w.fail(name, err)
		return
	}
	w.noteDir(name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		w.fail(name, err)
		return
	}
	setModTime(path, modTime)
	w.result.Written++
}

func (w *writer) writeFile(name string, mode os.FileMode, modTime time.Time, open func() (io.ReadCloser, error)) {
	path, err := w.target(name)
	if err != nil {
		w.fail(name, err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		w.fail(name, err)
		return
	}

	if mode.Perm() == 0 {
		mode = 0o644
	}
	src, err := open()
	if err != nil {
		w.fail(name, err)
		return
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		src.Close()
		w.fail(name, err)
		return
	}
	_, err = io.Copy(out, src)

	// Close inside the loop to avoid holding too many file descriptors.
	closeErr := out.Close()
	src.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		w.fail(name, err)
		return
	}
	setModTime(path, modTime)
	w.files = append(w.files, writtenFile{name: name, path: path})
	w.result.Written++
}

func (w *writer) unzip(ctx context.Context, src string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			w.writeDir(f.Name, f.Modified)
			continue
		}
		w.writeFile(f.Name, f.Mode(), f.Modified, f.Open)
	}
	return nil
}

func (w *writer) untar(ctx context.Context, src string, format Format) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file
	switch format {
	case FormatTarGz:
		gz, err := pgzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	case FormatTarXz:
		xzr, err := xz.NewReader(file)
		if err != nil {
			return fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xzr
	case FormatTarZstd:
		zst, err := zstd.NewReader(file)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zst.Close()
		r = zst
	}

	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading tar header: %w", err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			w.writeDir(hdr.Name, hdr.ModTime)
		case tar.TypeReg:
			w.writeFile(hdr.Name, os.FileMode(hdr.Mode), hdr.ModTime, func() (io.ReadCloser, error) {
				return io.NopCloser(tr), nil
			})
		case tar.TypeSymlink:
			w.writeSymlink(hdr.Name, hdr.Linkname)
		case tar.TypeXHeader, tar.TypeXGlobalHeader:
			// PAX headers carry no content of their own.
		default:
			w.logger.Debugf("Skipping unsupported tar entry type %c: %s", hdr.Typeflag, hdr.Name)
		}
	}
}

// writeSymlink creates a link only when its target stays under dest.
func (w *writer) writeSymlink(name, linkname string) {
	path, err := w.target(name)
	if err != nil {
		w.fail(name, err)
		return
	}
	resolved := linkname
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(path), linkname)
	}
	if !strings.HasPrefix(filepath.Clean(resolved), w.dest+string(os.PathSeparator)) {
		w.fail(name, fmt.Errorf("symlink target %s escapes destination", linkname))
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		w.fail(name, err)
		return
	}
	if err := os.Symlink(linkname, path); err != nil && !os.IsExist(err) {
		w.fail(name, err)
		return
	}
	w.result.Written++
}

// setModTime preserves the entry's modification time when it carries one.
func setModTime(path string, modTime time.Time) {
	if modTime.IsZero() {
		return
	}
	_ = os.Chtimes(path, modTime, modTime)
}
