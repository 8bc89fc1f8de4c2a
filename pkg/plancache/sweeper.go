// SPDX-License-Identifier: Apache-2.0

package plancache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Expirer is the slice of Store the sweeper needs.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// Sweeper removes expired proposals on a fixed interval, backstopping the
// read-time eviction for conversations that never come back.
type Sweeper struct {
	store    Expirer
	interval time.Duration
	timeout  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper. An interval of 0 disables it.
func NewSweeper(store Expirer, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, interval: interval, timeout: 10 * time.Second}
}

// Start launches the sweep loop. Calling Start on a running sweeper restarts
// it.
func (s *Sweeper) Start() {
	if s.interval <= 0 || s.store == nil {
		slog.Info("plancache.sweeper.disabled", slog.Duration("interval", s.interval))
		return
	}
	if s.cancel != nil {
		s.Stop()
	}
	initSweepMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		slog.Info("plancache.sweeper.start", slog.Duration("interval", s.interval))
		for {
			select {
			case <-ctx.Done():
				slog.Info("plancache.sweeper.stop")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	removed, err := s.store.DeleteExpired(sweepCtx)
	durationMs := float64(time.Since(start)) / float64(time.Millisecond)

	sweepCounter.Add(ctx, 1)
	sweepLatencyMs.Record(ctx, durationMs)
	if err != nil {
		sweepErrorCounter.Add(ctx, 1)
		slog.Warn("plancache.sweep.error", slog.Float64("duration_ms", durationMs), slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		sweptCounter.Add(ctx, int64(removed))
	}
	slog.Info("plancache.sweep.complete", slog.Int("removed", removed), slog.Float64("duration_ms", durationMs))
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	if s.done != nil {
		<-s.done
	}
	s.cancel = nil
	s.done = nil
}

var (
	sweepMetricsOnce  sync.Once
	sweepCounter      metric.Int64Counter
	sweepErrorCounter metric.Int64Counter
	sweptCounter      metric.Int64Counter
	sweepLatencyMs    metric.Float64Histogram
)

func initSweepMetrics() {
	sweepMetricsOnce.Do(func() {
		meter := otel.Meter("rendez/plancache")
		sweepCounter, _ = meter.Int64Counter("rendez.plancache.sweep.count")
		sweepErrorCounter, _ = meter.Int64Counter("rendez.plancache.sweep.error.count")
		sweptCounter, _ = meter.Int64Counter("rendez.plancache.swept.count")
		sweepLatencyMs, _ = meter.Float64Histogram("rendez.plancache.sweep.latency_ms")
	})
}
