package loadpath

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

func newTestAssembler() *Assembler {
	return NewAssembler(telemetry.NewNopLogger(), telemetry.NewNopMetrics())
}

func TestAssembleDeduplicates(t *testing.T) {
	candidates := []engine.LibraryReference{
		engine.NewLibraryReference("/app/ext/commons.jar", "ext", engine.SourceExtDir),
		engine.NewLibraryReference("/tmp/core/core.jar", "core", engine.SourceExtension),
		engine.NewLibraryReference("/tmp/core/commons.jar", "core", engine.SourceExtension),
		engine.NewLibraryReference("/tmp/billing/billing.jar", "billing", engine.SourceExtension),
		engine.NewLibraryReference("/tmp/billing/core.jar", "billing", engine.SourceExtension),
	}

	lp, err := newTestAssembler().Assemble(candidates, nil, filepath.Join(t.TempDir(), "lib"))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	want := []string{"/app/ext/commons.jar", "/tmp/core/core.jar", "/tmp/billing/billing.jar"}
	if !reflect.DeepEqual(lp.Paths(), want) {
		t.Errorf("Paths() = %v, want %v", lp.Paths(), want)
	}

	if len(lp.Skipped) != 2 {
		t.Fatalf("skipped = %d, want 2", len(lp.Skipped))
	}
	tests := []struct {
		skipped, keptBy string
	}{
		{"/tmp/core/commons.jar", "ext"},
		{"/tmp/billing/core.jar", "core"},
	}
	for i, tt := range tests {
		if lp.Skipped[i].Reference.Path != tt.skipped || lp.Skipped[i].KeptBy.Origin != tt.keptBy {
			t.Errorf("skipped[%d] = %+v, want %s kept by %s", i, lp.Skipped[i], tt.skipped, tt.keptBy)
		}
	}

	if ref, ok := lp.Lookup("core.jar"); !ok || ref.Origin != "core" {
		t.Errorf("Lookup(core.jar) = %+v, %v", ref, ok)
	}
}

func TestAssembleStagesNativeLibraries(t *testing.T) {
	root := t.TempDir()
	staging := filepath.Join(root, "tmp", "lib")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(staging, "stale.so"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	var inputs []string
	for _, name := range []string{"a/libfoo.so", "b/libbar.so"} {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(name), 0o755); err != nil {
			t.Fatal(err)
		}
		inputs = append(inputs, path)
	}
	inputs = append(inputs, filepath.Join(root, "missing", "libgone.so"))

	lp, err := newTestAssembler().Assemble(nil, inputs, staging)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if lp.NativeDir != staging {
		t.Errorf("NativeDir = %s, want %s", lp.NativeDir, staging)
	}
	if len(lp.StagedNative) != 2 {
		t.Errorf("staged = %v, want 2 files", lp.StagedNative)
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	if !reflect.DeepEqual(got, []string{"libbar.so", "libfoo.so"}) {
		t.Errorf("staging contents = %v", got)
	}

	data, err := os.ReadFile(filepath.Join(staging, "libfoo.so"))
	if err != nil || string(data) != "a/libfoo.so" {
		t.Errorf("libfoo.so = %q, %v", data, err)
	}
}

func TestAssembleEmpty(t *testing.T) {
	lp, err := newTestAssembler().Assemble(nil, nil, filepath.Join(t.TempDir(), "lib"))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(lp.Entries) != 0 || lp.String() != "" {
		t.Errorf("load path = %+v", lp)
	}
	if info, err := os.Stat(lp.NativeDir); err != nil || !info.IsDir() {
		t.Errorf("native dir not created: %v", err)
	}
}
