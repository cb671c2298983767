package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/naboomcommunity/mqtt-core/internal/health"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/logging"
)

// HealthSampler receives periodic health gauge samples. Satisfied by
// the influxdb writer; nil disables sampling.
type HealthSampler interface {
	WriteHealthPoint(snap health.Snapshot)
}

// Reporter publishes the health payload to the reply topic on a fixed
// interval, so dashboards see the service without polling the HTTP
// endpoint. It also feeds health gauges into telemetry when wired.
type Reporter struct {
	dispatcher *Dispatcher
	health     *health.State
	interval   time.Duration
	sampler    HealthSampler
	log        *logging.Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewReporter creates a reporter. A zero interval defaults to 30s.
func NewReporter(dispatcher *Dispatcher, state *health.State, interval time.Duration, sampler HealthSampler, log *logging.Logger) *Reporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reporter{
		dispatcher: dispatcher,
		health:     state,
		interval:   interval,
		sampler:    sampler,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Start begins periodic reporting. Call Stop to shut down.
func (r *Reporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.reportLoop(ctx)
}

// Stop halts the loop and publishes one final health payload so the
// last retained state reflects the shutdown. Run it from the service's
// shutdown hook so the connection is still up for that publish; once
// the client is gone the publish is silently skipped. Safe to call
// twice.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.publish()
	})
}

func (r *Reporter) reportLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.publish()
		}
	}
}

func (r *Reporter) publish() {
	r.dispatcher.publishHealth()
	if r.sampler != nil {
		r.sampler.WriteHealthPoint(r.health.Snapshot())
	}
	r.log.Debug("periodic health report published")
}
