// Package config loads the launcher settings.
//
// Settings are layered, lowest precedence first:
//
//  1. Built-in defaults (DefaultConfig)
//  2. conf/bootstrap.yaml under the workdir, or an explicit --config file
//  3. BOOTSTRAP_* environment variables (BOOTSTRAP_SUDO_PASSWORD, BOOTSTRAP_LOGGING_LEVEL, ...)
//  4. Command-line overrides passed in LoadOptions
//
// The result is validated with struct tags before use. Any failure is a
// configuration error and stops startup.
//
// The application descriptor is not part of these settings; see package descriptor.
//
// # Example
//
//	boot-script-timeout: 5m
//	library-patterns: ["*.jar", "*.wasm"]
//	logging:
//	  level: debug
//	journal:
//	  enabled: true
//	  path: state/journal.db
//	supervisor:
//	  max-restarts: 5
//	  restart-delay: 2s
package config
