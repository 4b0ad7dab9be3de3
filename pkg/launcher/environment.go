package launcher

import (
	"sort"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// Settings the launcher adds to every environment.
const (
	SettingRunID     = "bootstrap.runId"
	SettingLoadPath  = "bootstrap.loadPath"
	SettingNativeDir = "bootstrap.nativeDir"
)

// Environment is the read-only view of the launch handed to the application.
type Environment struct {
	runID    string
	appID    string
	appName  string
	loadPath *engine.LoadPath
	settings map[string]string
}

// NewEnvironment builds the view for req. Settings are copied.
func NewEnvironment(req engine.LaunchRequest) *Environment {
	lp := req.LoadPath
	if lp == nil {
		lp = &engine.LoadPath{}
	}

	settings := make(map[string]string, len(req.Settings)+3)
	for k, v := range req.Settings {
		settings[k] = v
	}
	settings[SettingRunID] = req.RunID
	settings[SettingLoadPath] = lp.String()
	settings[SettingNativeDir] = lp.NativeDir

	return &Environment{
		runID:    req.RunID,
		appID:    req.AppID,
		appName:  req.AppName,
		loadPath: lp,
		settings: settings,
	}
}

// RunID returns the identifier of this launch.
func (e *Environment) RunID() string { return e.runID }

// AppID returns the descriptor id.
func (e *Environment) AppID() string { return e.appID }

// AppName returns the descriptor name.
func (e *Environment) AppName() string { return e.appName }

// LoadPath returns the load path entries in order.
func (e *Environment) LoadPath() []string {
	return e.loadPath.Paths()
}

// NativeDir returns the directory holding staged native libraries.
func (e *Environment) NativeDir() string {
	return e.loadPath.NativeDir
}

// Lookup finds a load path entry by file name.
func (e *Environment) Lookup(name string) (string, bool) {
	ref, ok := e.loadPath.Lookup(name)
	return ref.Path, ok
}

// Setting returns one exported setting.
func (e *Environment) Setting(key string) (string, bool) {
	v, ok := e.settings[key]
	return v, ok
}

// Settings returns a copy of the exported settings.
func (e *Environment) Settings() map[string]string {
	out := make(map[string]string, len(e.settings))
	for k, v := range e.settings {
		out[k] = v
	}
	return out
}

// Environ renders the settings as sorted key=value pairs for child processes
// and WASI modules.
func (e *Environment) Environ() []string {
	keys := make([]string, 0, len(e.settings))
	for k := range e.settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+e.settings[k])
	}
	return env
}
