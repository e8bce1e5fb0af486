package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authpipe"
	"github.com/MrEthical07/authpipe/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter observes. *authpipe.Pipeline satisfies it.
type Source interface {
	MetricsSnapshot() authpipe.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         authpipe.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      authpipe.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

type observedGauge struct {
	key        string
	instrument metric.Int64ObservableGauge
}

// Exporter holds the registered instruments and their callback.
type Exporter struct {
	source       Source
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	gauges       []observedGauge
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers instruments on meter that observe p.
func NewExporter(meter metric.Meter, p *authpipe.Pipeline) (*Exporter, error) {
	if p == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, p)
}

// NewExporterFromSource registers instruments on meter that observe source.
func NewExporterFromSource(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, step := range []func(metric.Meter) ([]metric.Observable, error){
		e.registerCounters,
		e.registerHistograms,
		e.registerGauges,
	} {
		obs, err := step(meter)
		if err != nil {
			return nil, err
		}
		observables = append(observables, obs...)
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) registerCounters(meter metric.Meter) ([]metric.Observable, error) {
	out := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+1)
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
		out = append(out, ins)
	}

	dropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events dropped under dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	return append(out, dropped), nil
}

func (e *Exporter) registerHistograms(meter metric.Meter) ([]metric.Observable, error) {
	var out []metric.Observable
	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			out = append(out, ins)
		}

		countName := def.Name + "_count"
		count, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = count
		out = append(out, count)
		e.histograms = append(e.histograms, h)
	}
	return out, nil
}

func (e *Exporter) registerGauges(meter metric.Meter) ([]metric.Observable, error) {
	out := make([]metric.Observable, 0, len(internaldefs.GaugeDefs))
	for _, def := range internaldefs.GaugeDefs {
		ins, err := meter.Int64ObservableGauge(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create gauge %s: %w", def.Name, err)
		}
		e.gauges = append(e.gauges, observedGauge{key: def.Key, instrument: ins})
		out = append(out, ins)
	}
	return out, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i := range cumulative {
			o.ObserveInt64(h.buckets[i], int64(cumulative[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	if snapshot.Gauges != nil {
		for _, g := range e.gauges {
			o.ObserveInt64(g.instrument, snapshot.Gauges[g.key])
		}
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. Instruments stay registered on the meter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
