// Package worker runs the engine's periodic jobs: the scheduler that starts
// due campaigns and the sweeper that resolves campaigns stuck in sending.
// Each tick optionally takes a fleet-wide leader lock so only one instance
// acts at a time.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// ErrAlreadyRunning is returned by Start on a running job.
var ErrAlreadyRunning = errors.New("worker already running")

// periodic runs tick every interval until Stop.
type periodic struct {
	name     string
	interval time.Duration
	lock     distlock.DistLock
	tick     func(ctx context.Context) (int, error)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (p *periodic) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}
	p.running = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	logger.Info("worker starting", "worker", p.name, "interval", p.interval.String())
	p.wg.Add(1)
	go p.loop(ctx)
	return nil
}

func (p *periodic) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	logger.Info("worker stopped", "worker", p.name)
}

func (p *periodic) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// run executes one tick under the leader lock, if any.
func (p *periodic) run(ctx context.Context) (int, error) {
	if p.lock != nil {
		acquired, err := p.lock.Acquire(ctx)
		if err != nil {
			logger.Error("worker lock failed", "worker", p.name, "error", err)
			return 0, err
		}
		if !acquired {
			logger.Debug("worker lock held elsewhere", "worker", p.name)
			return 0, nil
		}
		defer p.lock.Release(context.WithoutCancel(ctx))
	}
	n, err := p.tick(ctx)
	if err != nil {
		logger.Error("worker tick failed", "worker", p.name, "error", err)
	} else if n > 0 {
		logger.Info("worker tick", "worker", p.name, "processed", n)
	}
	return n, err
}
