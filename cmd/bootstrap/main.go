package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/bootstrap/cmd/bootstrap/commands"
	"github.com/openfroyo/bootstrap/pkg/launcher"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	launcher.RegisterBuiltins(commands.Registry, os.Stdout)

	code, err := commands.Execute(ctx, Version, Commit, BuildDate)
	if err != nil {
		log.Error().Err(err).Int("exit_code", code).Msg("Command execution failed")
	}
	cancel()
	os.Exit(code)
}

// setupLogging configures the global zerolog logger used before settings are
// loaded. The level applies to this logger only; the run's own logger follows
// the logging.level setting.
func setupLogging() {
	level := zerolog.InfoLevel
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	if debug, _ := strconv.ParseBool(os.Getenv("BOOTSTRAP_DEBUG")); debug {
		level = zerolog.DebugLevel
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
}
