package launcher

import (
	"context"
	"sync"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// FullFunc receives the environment, the lifecycle hooks and the forwarded arguments.
type FullFunc func(ctx context.Context, env *Environment, hooks *Hooks, args []string) error

// HooksFunc receives the environment and the lifecycle hooks but no arguments.
type HooksFunc func(ctx context.Context, env *Environment, hooks *Hooks) error

// MainFunc receives only the forwarded arguments and reports an exit status.
type MainFunc func(ctx context.Context, args []string) (int, error)

// Symbol is a bound entry point. It declares the calling conventions it
// supports by which fields are set; the launcher uses the highest ranked one.
type Symbol struct {
	Full  FullFunc
	Hooks HooksFunc
	Main  MainFunc
}

// Convention is an entry point calling convention.
type Convention int

// Conventions in rank order.
const (
	ConventionNone Convention = iota
	ConventionMain
	ConventionHooks
	ConventionFull
)

// String returns the convention name.
func (c Convention) String() string {
	switch c {
	case ConventionFull:
		return "full"
	case ConventionHooks:
		return "hooks"
	case ConventionMain:
		return "main"
	default:
		return "none"
	}
}

// Convention returns the highest ranked convention the symbol declares.
func (s Symbol) Convention() Convention {
	switch {
	case s.Full != nil:
		return ConventionFull
	case s.Hooks != nil:
		return ConventionHooks
	case s.Main != nil:
		return ConventionMain
	default:
		return ConventionNone
	}
}

// Hooks lets a running application end the process. Restart exits with
// status 99 so a supervisor relaunches it; Shutdown exits with status 0.
type Hooks struct {
	once      sync.Once
	terminate func(code int)
	fired     *engine.LaunchResult
	mu        sync.Mutex
}

func newHooks(terminate func(code int)) *Hooks {
	return &Hooks{terminate: terminate}
}

// Restart terminates the process with the restart status.
func (h *Hooks) Restart() {
	h.fire(engine.ExitRestart)
}

// Shutdown terminates the process with the shutdown status.
func (h *Hooks) Shutdown() {
	h.fire(engine.ExitShutdown)
}

func (h *Hooks) fire(code int) {
	h.once.Do(func() {
		result := engine.ResultForExit(code)
		h.mu.Lock()
		h.fired = &result
		h.mu.Unlock()
		h.terminate(code)
	})
}

// result returns the hook outcome, if a hook fired.
func (h *Hooks) result() (engine.LaunchResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fired == nil {
		return engine.LaunchResult{}, false
	}
	return *h.fired, true
}
