// Package descriptor loads the application descriptor, the flat key/value file
// that names the application, its entry point and where its extensions live.
package descriptor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/magiconair/properties"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// Descriptor keys.
const (
	KeyID             = "id"
	KeyName           = "name"
	KeyMainEntry      = "main-entry"
	KeyArchiveName    = "archive-name"
	KeyDistDir        = "dist-dir"
	KeyAdditionalPath = "additional-classpath"
	KeyTmpDir         = "tmp-dir"
	KeyRepos          = "repos"
)

const (
	legacyPrefix    = "app."
	homePlaceholder = "${user.home}"
	defaultDistDir  = "dist"
	defaultTmpDir   = "tmp"
)

// legacyAliases maps older app.* keys to their current names.
var legacyAliases = map[string]string{
	"app.id":                  KeyID,
	"app.name":                KeyName,
	"app.main":                KeyMainEntry,
	"app.archive":             KeyArchiveName,
	"app.dist":                KeyDistDir,
	"app.additionalClasspath": KeyAdditionalPath,
	"app.tmp":                 KeyTmpDir,
	"app.repos":               KeyRepos,
}

var reservedKeys = map[string]bool{
	KeyID:             true,
	KeyName:           true,
	KeyMainEntry:      true,
	KeyArchiveName:    true,
	KeyDistDir:        true,
	KeyAdditionalPath: true,
	KeyTmpDir:         true,
	KeyRepos:          true,
}

// fields is the validated form of the reserved keys.
type fields struct {
	ID        string `validate:"required"`
	Name      string `validate:"required"`
	MainEntry string `validate:"required"`
}

// Descriptor is the parsed application descriptor. It is immutable once loaded.
type Descriptor struct {
	path            string
	id              string
	name            string
	mainEntry       string
	archiveName     string
	distDir         string
	additionalPaths []string
	tmpDir          string
	repos           string
	settings        map[string]string
}

// Load reads and validates the descriptor at path.
// A missing required key is a ConfigurationError.
func Load(path string) (*Descriptor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, engine.NewConfigurationError("cannot open application descriptor", err).WithPath(path)
	}
	defer file.Close()

	home, _ := os.UserHomeDir()
	d, err := Parse(file, home)
	if err != nil {
		var bootErr *engine.BootstrapError
		if errors.As(err, &bootErr) {
			return nil, bootErr.WithPath(path)
		}
		return nil, err
	}
	d.path = path
	return d, nil
}

// Parse reads a descriptor from r. home replaces ${user.home} in the tmp-dir value.
func Parse(r io.Reader, home string) (*Descriptor, error) {
	values, err := readProperties(r)
	if err != nil {
		return nil, engine.NewConfigurationError("cannot read application descriptor", err)
	}

	resolved := make(map[string]string, len(reservedKeys))
	settings := make(map[string]string)
	for key, value := range values {
		switch {
		case reservedKeys[key]:
			resolved[key] = value
		case strings.HasPrefix(key, legacyPrefix):
			if current, ok := legacyAliases[key]; ok {
				if _, set := values[current]; !set {
					resolved[current] = value
				}
			}
		default:
			settings[key] = value
		}
	}

	f := fields{
		ID:        resolved[KeyID],
		Name:      resolved[KeyName],
		MainEntry: resolved[KeyMainEntry],
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("application descriptor is missing %s", missingKeys(err)), err)
	}

	d := &Descriptor{
		id:          f.ID,
		name:        f.Name,
		mainEntry:   f.MainEntry,
		archiveName: resolved[KeyArchiveName],
		distDir:     valueOr(resolved[KeyDistDir], defaultDistDir),
		tmpDir:      valueOr(resolved[KeyTmpDir], defaultTmpDir),
		repos:       resolved[KeyRepos],
		settings:    settings,
	}
	if home != "" {
		d.tmpDir = strings.ReplaceAll(d.tmpDir, homePlaceholder, home)
	}
	for _, entry := range strings.Split(resolved[KeyAdditionalPath], ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			d.additionalPaths = append(d.additionalPaths, entry)
		}
	}

	return d, nil
}

// missingKeys names the descriptor keys behind a validation failure.
func missingKeys(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "required keys"
	}
	keys := map[string]string{"ID": KeyID, "Name": KeyName, "MainEntry": KeyMainEntry}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, keys[fe.Field()])
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// readProperties parses the descriptor with Java properties semantics. ${...}
// references are left alone; ${user.home} is substituted by Parse.
func readProperties(r io.Reader) (map[string]string, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(buf)
	if err != nil {
		return nil, err
	}
	return props.Map(), nil
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Path returns the file the descriptor was loaded from, if any.
func (d *Descriptor) Path() string { return d.path }

// ID returns the application identifier.
func (d *Descriptor) ID() string { return d.id }

// Name returns the application display name.
func (d *Descriptor) Name() string { return d.name }

// MainEntry returns the entry point name.
func (d *Descriptor) MainEntry() string { return d.mainEntry }

// ArchiveName returns the system archive name, if configured.
func (d *Descriptor) ArchiveName() string { return d.archiveName }

// DistDir returns the directory holding extension archives.
func (d *Descriptor) DistDir() string { return d.distDir }

// TmpDir returns the temporary root with ${user.home} already substituted.
func (d *Descriptor) TmpDir() string { return d.tmpDir }

// Repos returns the repository list, passed through to the application.
func (d *Descriptor) Repos() string { return d.repos }

// AdditionalPaths returns the extra load path entries in listed order.
func (d *Descriptor) AdditionalPaths() []string {
	return append([]string(nil), d.additionalPaths...)
}

// Settings returns a copy of the keys exported to the launched application.
func (d *Descriptor) Settings() map[string]string {
	out := make(map[string]string, len(d.settings))
	for k, v := range d.settings {
		out[k] = v
	}
	return out
}
