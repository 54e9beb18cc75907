package job

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
)

var (
	shieldMx sync.Mutex
	active   chan os.Signal
)

// Shield keeps the interactive shell alive and running under the job control
// signals of the terminal: interrupt, quit, stop and background tty access.
// Signals are caught rather than ignored, so the Go runtime restores their
// default disposition in every spawned child.
type Shield struct {
	ch chan os.Signal
}

// NewShield installs the handlers right away, spawns which follow already see
// them. Run must be called to drain the signals and to remove the handlers.
func NewShield() *Shield {
	s := &Shield{ch: make(chan os.Signal, 8)}
	shieldMx.Lock()
	defer shieldMx.Unlock()
	signal.Notify(s.ch, shielded...)
	active = s.ch
	return s
}

// Run discards caught signals until ctx is done.
func (s *Shield) Run(ctx context.Context) error {
	defer s.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-s.ch:
			slog.DebugContext(ctx, "signal ignored by the shell", "signal", sig.String())
		}
	}
}

func (s *Shield) stop() {
	shieldMx.Lock()
	defer shieldMx.Unlock()
	signal.Stop(s.ch)
	if active == s.ch {
		active = nil
	}
}

// rearm restores sig after a temporary signal.Ignore: back to the shield when
// one is installed, to the default disposition otherwise.
func rearm(sig os.Signal) {
	if active != nil {
		signal.Notify(active, sig)
		return
	}
	signal.Reset(sig)
}
