package extensions

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"
)

// ManifestFile is the optional provenance manifest at an extension root.
const ManifestFile = "extension.yaml"

// LoadManifest reads extension.yaml from root. It returns nil, nil when the
// package carries no manifest.
func LoadManifest(root string) (*engine.ExtensionManifest, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest engine.ExtensionManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	return &manifest, nil
}

// Digest returns the hex BLAKE3-256 digest of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
