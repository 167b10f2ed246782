package otel

import (
	"context"
	"errors"
	"fmt"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goIdentity.MetricsSnapshot
	AuditDropped() uint64
}

// outcome is one engine counter observed on its family's instrument.
type outcome struct {
	id   goIdentity.MetricID
	opts metric.ObserveOption
}

type flowCounter struct {
	instrument metric.Int64ObservableCounter
	outcomes   []outcome
}

// OTelExporter observes engine counters on every collection. Each flow is one
// counter instrument with an "outcome" attribute; sign-in latency is a
// cumulative bucket counter keyed by "le" plus a sample count.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	flows        []flowCounter
	latency      metric.Int64ObservableCounter
	latencyCount metric.Int64ObservableCounter
	latencyOpts  []metric.ObserveOption
	auditDropped metric.Int64ObservableCounter
}

func NewOTelExporter(meter metric.Meter, engine *goIdentity.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, f := range internaldefs.Families {
		ins, err := meter.Int64ObservableCounter(f.OTelName(), metric.WithDescription(f.Help), metric.WithUnit("{event}"))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", f.OTelName(), err)
		}
		fc := flowCounter{instrument: ins}
		for _, m := range f.Members {
			set := attribute.NewSet(attribute.String(internaldefs.OutcomeLabel, m.Outcome))
			fc.outcomes = append(fc.outcomes, outcome{id: m.ID, opts: metric.WithAttributeSet(set)})
		}
		e.flows = append(e.flows, fc)
		observables = append(observables, ins)
	}

	var err error
	e.latency, err = meter.Int64ObservableCounter(internaldefs.LatencyOTelName+".bucket",
		metric.WithDescription(internaldefs.LatencyHelp+" Cumulative count per upper bound in seconds."),
		metric.WithUnit("{sign_in}"))
	if err != nil {
		return nil, fmt.Errorf("create latency buckets: %w", err)
	}
	e.latencyCount, err = meter.Int64ObservableCounter(internaldefs.LatencyOTelName+".count",
		metric.WithDescription(internaldefs.LatencyHelp+" Sample count."),
		metric.WithUnit("{sign_in}"))
	if err != nil {
		return nil, fmt.Errorf("create latency count: %w", err)
	}
	for _, le := range internaldefs.LatencyBounds {
		e.latencyOpts = append(e.latencyOpts, metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le))))
	}

	e.auditDropped, err = meter.Int64ObservableCounter(internaldefs.AuditDroppedOTelName,
		metric.WithDescription(internaldefs.AuditDroppedHelp), metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.latency, e.latencyCount, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, fc := range e.flows {
		for _, oc := range fc.outcomes {
			o.ObserveInt64(fc.instrument, int64(snapshot.Counters[oc.id]), oc.opts)
		}
	}

	// Latency histograms disabled: nothing to report.
	if buckets, ok := snapshot.Histograms[goIdentity.MetricSignInLatency]; ok {
		cumulative := internaldefs.CumulativeBuckets(buckets)
		for i, opts := range e.latencyOpts {
			o.ObserveInt64(e.latency, int64(cumulative[i]), opts)
		}
		o.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. The instruments stay with the meter.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
