package goIdentity

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricSignInAuthorized)

	if got := m.Value(MetricSignInAuthorized); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %d counters", len(snap.Counters))
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricTokenIssued)
	m.Inc(MetricTokenIssued)
	m.Inc(MetricTokenIssued)

	if got := m.Value(MetricTokenIssued); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsUnknownIDIgnored(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(metricIDCount + 5)
	if got := m.Value(metricIDCount + 5); got != 0 {
		t.Fatalf("expected 0 for unknown id, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricTokenConsumed)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricTokenConsumed); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}
	for _, d := range observations {
		m.Observe(MetricSignInLatency, d)
	}
	// Only the sign-in latency id carries a histogram.
	m.Observe(MetricTokenIssued, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricSignInLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricSignInAuthorized)
	m.Inc(MetricSignInRejected)
	m.Inc(MetricSignInRejected)
	m.Observe(MetricSignInLatency, 2*time.Millisecond)

	snap := m.Snapshot()
	if snap.Counters[MetricSignInAuthorized] != 1 {
		t.Fatalf("expected MetricSignInAuthorized=1 got %d", snap.Counters[MetricSignInAuthorized])
	}
	if snap.Counters[MetricSignInRejected] != 2 {
		t.Fatalf("expected MetricSignInRejected=2 got %d", snap.Counters[MetricSignInRejected])
	}
	if _, ok := snap.Histograms[MetricSignInLatency]; ok {
		t.Fatal("histogram must be absent when latency histograms are disabled")
	}
}

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricSignInAuthorized)
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricSignInAuthorized)
		}
	})
}
