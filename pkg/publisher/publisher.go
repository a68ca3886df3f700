// Package publisher keeps virtual thermostats alive on the uplink. The cloud
// treats a thermostat that stops reporting as stale, so tracked thermostats
// are republished on an interval until untracked.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/heatlink/heatlink/pkg/log"
	"github.com/heatlink/heatlink/pkg/schedule"
	"github.com/heatlink/heatlink/pkg/types"
	"github.com/heatlink/heatlink/pkg/uplink"
	"github.com/levenlabs/go-lflag"
)

// resolver finds the uplink session owning a system.
type resolver interface {
	System(ctx context.Context, system int) (uplink.Session, error)
}

// Publisher republishes tracked thermostats on a fixed interval.
type Publisher struct {
	reg      resolver
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	tasks map[int]*schedule.Task
}

// Configured sets up the Publisher.
// It registers flags for configuration.
func Configured(reg *uplink.Registry) *Publisher {
	interval := lflag.Duration("thermostat-republish-interval", 15*time.Minute, "How often tracked thermostats are republished to the uplink")

	p := New(reg, 0)

	lflag.Do(func() {
		if *interval <= 0 {
			panic("thermostat-republish-interval must be positive")
		}
		p.interval = *interval
	})

	return p
}

// New returns a Publisher republishing every interval.
func New(reg resolver, interval time.Duration) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		reg:      reg,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[int]*schedule.Task),
	}
}

// Track publishes the thermostat immediately and then keeps republishing it
// every interval. Tracking the same external identifier again replaces the
// previous tracking. The first publish uses the caller's context so its
// failure is returned.
func (p *Publisher) Track(ctx context.Context, system int, thermostat types.Thermostat) error {
	if err := p.publish(ctx, system, thermostat); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.tasks[thermostat.ExternalID]; ok {
		prev.Stop()
	}
	p.tasks[thermostat.ExternalID] = schedule.Repeat(p.ctx, p.interval, func(ctx context.Context) error {
		return p.publish(ctx, system, thermostat)
	}, schedule.WithErrorHandler(func(ctx context.Context, err error) {
		log.Ctx(ctx).ErrorContext(ctx, "failed to republish thermostat",
			slog.Int("system", system),
			slog.Int("externalID", thermostat.ExternalID),
			slog.Any("err", err),
		)
	}))
	return nil
}

// Untrack stops republishing the thermostat with the given external
// identifier. It does nothing if the identifier is not tracked.
func (p *Publisher) Untrack(externalID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if task, ok := p.tasks[externalID]; ok {
		task.Stop()
		delete(p.tasks, externalID)
	}
}

// Tracked returns the external identifiers currently being republished.
func (p *Publisher) Tracked() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int, 0, len(p.tasks))
	for id := range p.tasks {
		ids = append(ids, id)
	}
	return ids
}

// Stop cancels all tracking.
func (p *Publisher) Stop() {
	p.cancel()
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, task := range p.tasks {
		task.Stop()
		delete(p.tasks, id)
	}
}

func (p *Publisher) publish(ctx context.Context, system int, thermostat types.Thermostat) error {
	s, err := p.reg.System(ctx, system)
	if err != nil {
		return fmt.Errorf("failed to resolve system %d: %w", system, err)
	}
	return s.PostSmarthomeThermostat(ctx, system, thermostat)
}
