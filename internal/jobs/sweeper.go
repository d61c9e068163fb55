package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner deletes rows that reached a terminal state.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type Sweeper struct {
	interval time.Duration
	log      *slog.Logger
	targets  map[string]Cleaner
}

func NewSweeper(interval time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{interval: interval, log: log, targets: map[string]Cleaner{}}
}

// Add registers c under name. It must be called before Run.
func (s *Sweeper) Add(name string, c Cleaner) *Sweeper {
	s.targets[name] = c
	return s
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs every registered cleaner and returns deleted counts by
// name. A failing cleaner is logged and does not stop the others.
func (s *Sweeper) SweepOnce(ctx context.Context) map[string]int64 {
	counts := make(map[string]int64, len(s.targets))
	for name, c := range s.targets {
		n, err := c.CleanupExpired(ctx)
		if err != nil {
			s.log.Error("sweep failed", "target", name, "error", err)
			continue
		}
		counts[name] = n
		if n > 0 {
			s.log.Info("swept expired rows", "target", name, "count", n)
		}
	}
	return counts
}
