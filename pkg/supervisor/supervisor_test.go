package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// sequence returns a StartFunc that exits with the given codes in order.
func sequence(calls *int32, codes ...int) StartFunc {
	return func(context.Context) (int, error) {
		n := atomic.AddInt32(calls, 1)
		return codes[int(n)-1], nil
	}
}

func TestSupervisorRun(t *testing.T) {
	tests := []struct {
		name        string
		maxRestarts int
		codes       []int
		wantCode    int
		wantCalls   int32
		wantErr     error
	}{
		{name: "shutdown", codes: []int{0}, wantCode: 0, wantCalls: 1},
		{name: "restarts until shutdown", codes: []int{99, 99, 0}, wantCode: 0, wantCalls: 3},
		{name: "failure status propagates", codes: []int{99, 2}, wantCode: 2, wantCalls: 2},
		{name: "restart limit", maxRestarts: 1, codes: []int{99, 99}, wantCode: 99, wantCalls: 2, wantErr: ErrTooManyRestarts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			s := New(Config{MaxRestarts: tt.maxRestarts, RestartDelay: time.Millisecond},
				sequence(&calls, tt.codes...), telemetry.NewNopLogger())

			code, err := s.Run(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestSupervisorStartError(t *testing.T) {
	s := New(Config{}, func(context.Context) (int, error) {
		return 1, errors.New("cannot exec")
	}, telemetry.NewNopLogger())

	if code, err := s.Run(context.Background()); err == nil || code != 1 {
		t.Errorf("Run() = %d, %v", code, err)
	}
}

func TestSupervisorCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Config{}, func(runCtx context.Context) (int, error) {
		cancel()
		<-runCtx.Done()
		return -1, nil
	}, telemetry.NewNopLogger())

	code, err := s.Run(ctx)
	if err != nil || code != 0 {
		t.Errorf("Run() = %d, %v; want 0, nil", code, err)
	}
}

func TestSupervisorWatchRelaunches(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var calls int32
	start := func(runCtx context.Context) (int, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			go func() {
				time.Sleep(100 * time.Millisecond)
				_ = os.WriteFile(filepath.Join(dir, "app-2.0.zip"), []byte("new"), 0o644)
			}()
			<-runCtx.Done()
			return -1, nil
		}
		return 0, nil
	}

	s := New(Config{WatchDir: dir, Debounce: 50 * time.Millisecond}, start, telemetry.NewNopLogger())
	code, err := s.Run(ctx)
	if err != nil || code != 0 {
		t.Fatalf("Run() = %d, %v", code, err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if ctx.Err() != nil {
		t.Error("relaunch did not happen before the deadline")
	}
}

func TestSupervisorWatchMissingDir(t *testing.T) {
	s := New(Config{WatchDir: filepath.Join(t.TempDir(), "missing")},
		func(context.Context) (int, error) { return 0, nil }, telemetry.NewNopLogger())
	if _, err := s.Run(context.Background()); err == nil {
		t.Error("Run() with a missing watch directory succeeded")
	}
}
