package polling

import (
	"context"
	"errors"
	"time"
)

// Run runs a cycle immediately and then keeps running cycles until ctx is
// cancelled. The timer is only armed once a cycle has finished, so a slow
// cycle delays the next one instead of overlapping it. A cycle that has
// started is not interrupted by cancellation.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Infof("Starting import poller for cabinet %s (interval: %s)", p.cfg.Cabinet, p.cfg.Interval)

	trigger := TriggerTimer
	for {
		if _, err := p.runCycle(ctx, trigger); err != nil && !errors.Is(err, ErrCycleInFlight) {
			p.log.Debugf("Import cycle ended early: %v", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		timer := time.NewTimer(p.cfg.Interval)
		p.mu.Lock()
		p.nextRunAt = p.now().Add(p.cfg.Interval)
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			trigger = TriggerTimer
		case <-p.trigger:
			timer.Stop()
			trigger = TriggerManual
		}
	}
}

// Trigger asks a running Run loop for a cycle as soon as it is idle.
// Triggers arriving while one is already queued are coalesced into it.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}
