package deposit

import (
	"context"
	"sync"
	"time"

	"yield-ledger-go/internal/models"

	"go.uber.org/zap"
)

// Poller sweeps pending deposit intents on a fixed interval.
type Poller struct {
	reconciler *Reconciler
	interval   time.Duration

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewPoller(reconciler *Reconciler, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		reconciler: reconciler,
		interval:   interval,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

// Start begins polling in the background.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	zap.L().Info("Starting deposit poller", zap.Duration("polling_interval", p.interval))
	go p.pollLoop(ctx)
}

// Stop waits for the current sweep to finish. A poller that was never started
// only waits for triggered passes.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		zap.L().Info("Stopping deposit poller")
		p.mu.Lock()
		started := p.started
		p.started = true
		p.mu.Unlock()

		close(p.stopChan)
		if started {
			<-p.doneChan
		}
		p.reconciler.Wait()
		zap.L().Info("Deposit poller stopped")
	})
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			p.sweep(ctx)
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Deposit sweep panicked", zap.Any("panic", r))
		}
	}()

	if _, err := p.reconciler.Sweep(models.WithTrigger(ctx, models.TriggerPoller)); err != nil {
		zap.L().Error("Deposit sweep failed", zap.Error(err))
	}
}
