package uploads

import (
	"context"
	"sync"
	"time"
)

// Janitor runs Cleanup on an interval until stopped.
type Janitor struct {
	reg      *Registry
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a janitor for reg.
func NewJanitor(reg *Registry, interval time.Duration) *Janitor {
	return &Janitor{reg: reg, interval: interval}
}

// Start launches the cleanup goroutine.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.reg.Cleanup()
			}
		}
	}()
}

// Stop halts the goroutine and waits for it.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}
