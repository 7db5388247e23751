// Package poller drives the periodic read/decode/export cycle against one
// device. Failures are isolated to the smallest affected unit: a failed
// range read drops only its registers, a decode failure drops one register,
// a sink failure affects only that sink for that cycle. Nothing short of
// context cancellation stops the loop.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modmetrics/modmetrics/internal/decode"
	"github.com/modmetrics/modmetrics/internal/errors"
	"github.com/modmetrics/modmetrics/internal/metrics"
	"github.com/modmetrics/modmetrics/internal/sample"
	"github.com/modmetrics/modmetrics/internal/schema"
	"github.com/modmetrics/modmetrics/internal/sink"
	"github.com/modmetrics/modmetrics/internal/transport"
)

// State is the scheduler's current phase within a cycle.
type State int32

const (
	StateIdle State = iota
	StateReading
	StateDecoding
	StateExporting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateDecoding:
		return "decoding"
	case StateExporting:
		return "exporting"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Options configures the poll scheduler.
type Options struct {
	// Interval between cycle starts.
	Interval time.Duration
	// SinkTimeout bounds each sink's delivery of one sample.
	SinkTimeout time.Duration
	// Source identifies the device in exported samples.
	Source string
	// Staleness is how long the health check tolerates no successful
	// cycle; 3x the interval if unset.
	Staleness time.Duration
}

// Poller owns the transport connection exclusively and fans completed
// samples out to the configured sinks.
type Poller struct {
	set    *schema.Set
	ranges []readRange
	reader transport.RegisterReader
	sinks  []sink.Sink
	opts   Options

	state       atomic.Int32
	lastSuccess atomic.Int64 // unix nanos of last successful cycle
}

// New creates a poller for the given schema, transport and sinks.
func New(set *schema.Set, reader transport.RegisterReader, sinks []sink.Sink, opts Options) *Poller {
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 10 * time.Second
	}
	if opts.Staleness <= 0 {
		opts.Staleness = 3 * opts.Interval
	}
	return &Poller{
		set:    set,
		ranges: planRanges(set),
		reader: reader,
		sinks:  sinks,
		opts:   opts,
	}
}

// State returns the scheduler's current phase.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// StateName returns the current phase as a string for status reporting.
func (p *Poller) StateName() string {
	return p.State().String()
}

// LastSuccess returns the completion time of the last successful cycle, or
// the zero time if none has succeeded yet.
func (p *Poller) LastSuccess() time.Time {
	n := p.lastSuccess.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Run executes poll cycles at the configured interval until ctx is
// cancelled. The interval is measured from cycle start: a slow cycle skips
// at most one tick and never compounds delay. Run always returns nil after
// reaching the stopped state.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("poller starting",
		"registers", p.set.Len(),
		"ranges", len(p.ranges),
		"sinks", len(p.sinks),
		"interval", p.opts.Interval)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			p.state.Store(int32(StateStopped))
			slog.Info("poller stopped")
			return nil
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle performs one read → decode → assemble → export pass.
func (p *Poller) runCycle(ctx context.Context) {
	start := time.Now()

	p.state.Store(int32(StateReading))
	words, readFailures := p.readAll(ctx)

	p.state.Store(int32(StateDecoding))
	values := p.decodeAll(start, words)

	smp := sample.Assemble(start, p.opts.Source, values)

	p.state.Store(int32(StateExporting))
	sinkFailures := p.exportAll(ctx, smp)

	p.state.Store(int32(StateIdle))

	elapsed := time.Since(start)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	metrics.RegistersDecoded.Set(float64(smp.Len()))
	metrics.LastCycleTime.Set(float64(time.Now().Unix()))

	status := "ok"
	if readFailures > 0 || sinkFailures > 0 {
		status = "degraded"
	}
	if smp.Len() == 0 && readFailures > 0 {
		status = "failed"
	}
	metrics.Cycles.WithLabelValues(status).Inc()

	if status != "failed" {
		p.lastSuccess.Store(time.Now().UnixNano())
	}

	slog.Debug("cycle complete",
		"duration", elapsed,
		"decoded", smp.Len(),
		"read_failures", readFailures,
		"sink_failures", sinkFailures,
		"status", status)
}

// readAll issues every planned range read concurrently and waits for all of
// them. The result maps range index to raw words; failed ranges are absent.
func (p *Poller) readAll(ctx context.Context) (map[int][]uint16, int) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		words    = make(map[int][]uint16, len(p.ranges))
		failures int
	)

	for i, r := range p.ranges {
		wg.Add(1)
		go func(i int, r readRange) {
			defer wg.Done()
			ws, err := p.reader.ReadRegisters(ctx, r.kind, r.start, r.count)
			if err != nil {
				readErr := &errors.ReadError{
					Kind:       r.kind.String(),
					Start:      r.start,
					Count:      r.count,
					Underlying: err,
					Timestamp:  time.Now(),
				}
				slog.Warn("range read failed", "kind", r.kind.String(), "start", r.start, "count", r.count, "error", readErr)
				metrics.ReadErrors.WithLabelValues(r.kind.String()).Inc()
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}
			mu.Lock()
			words[i] = ws
			mu.Unlock()
		}(i, r)
	}
	wg.Wait()
	return words, failures
}

// decodeAll converts every successfully read range into decoded values, in
// schema order. A register that fails to decode is dropped from the sample.
func (p *Poller) decodeAll(ts time.Time, words map[int][]uint16) []sample.DecodedValue {
	var values []sample.DecodedValue
	for i, r := range p.ranges {
		ws, ok := words[i]
		if !ok {
			continue
		}
		for _, def := range r.defs {
			off := int(def.Address - r.start)
			end := off + int(def.Span())
			if end > len(ws) {
				slog.Warn("short read for register", "register", def.Name.String(), "have", len(ws), "need", end)
				metrics.DecodeErrors.WithLabelValues(def.Name.String()).Inc()
				continue
			}
			v, err := decode.Decode(ws[off:end], def)
			if err != nil {
				slog.Warn("decode failed", "register", def.Name.String(), "error", err)
				metrics.DecodeErrors.WithLabelValues(def.Name.String()).Inc()
				continue
			}
			values = append(values, sample.DecodedValue{
				Name:      def.Name,
				Value:     v,
				Unit:      def.Unit,
				Timestamp: ts,
			})
		}
	}
	return values
}

// exportAll invokes every sink with the same sample concurrently. A sink's
// failure is logged and counted but never prevents or taints another sink's
// delivery. Every export runs under its own timeout.
func (p *Poller) exportAll(ctx context.Context, smp *sample.Sample) int {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
	)

	for _, s := range p.sinks {
		wg.Add(1)
		go func(s sink.Sink) {
			defer wg.Done()
			// The export is bounded by the sink timeout only; a shutdown
			// signal does not abort a delivery already in flight.
			exportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.SinkTimeout)
			defer cancel()

			start := time.Now()
			err := s.Export(exportCtx, smp)
			metrics.SinkExportDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())

			if err != nil {
				slog.Error("export failed", "sink", s.Name(), "values", smp.Len(), "error", err)
				metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}
			slog.Debug("export delivered", "sink", s.Name(), "values", smp.Len())
		}(s)
	}
	wg.Wait()
	return failures
}

// ComponentName implements the health component interface.
func (p *Poller) ComponentName() string {
	return "poller"
}

// CheckHealth reports unhealthy when no cycle has succeeded within the
// staleness window.
func (p *Poller) CheckHealth(_ context.Context) error {
	last := p.LastSuccess()
	if last.IsZero() {
		return fmt.Errorf("no successful poll cycle yet")
	}
	if age := time.Since(last); age > p.opts.Staleness {
		return fmt.Errorf("last successful cycle %s ago (staleness limit %s)", age.Round(time.Second), p.opts.Staleness)
	}
	return nil
}
