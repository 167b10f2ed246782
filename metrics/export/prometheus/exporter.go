package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goIdentity.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders engine counters as one labeled counter per flow
// plus the sign-in latency histogram, in text exposition format 0.0.4.
type PrometheusExporter struct {
	source metricsSource
}

func NewPrometheusExporter(engine *goIdentity.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from any snapshot source; tests use it.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render. A disabled engine yields an empty 200 body.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	w := &textWriter{}
	for _, f := range internaldefs.Families {
		name := f.PromName()
		w.header(name, f.Help, "counter")
		for _, m := range f.Members {
			w.sample(name, internaldefs.OutcomeLabel, m.Outcome, snapshot.Counters[m.ID])
		}
	}

	if buckets, ok := snapshot.Histograms[goIdentity.MetricSignInLatency]; ok {
		cumulative := internaldefs.CumulativeBuckets(buckets)
		w.header(internaldefs.LatencyPromName, internaldefs.LatencyHelp, "histogram")
		for i, le := range internaldefs.LatencyBounds {
			w.sample(internaldefs.LatencyPromName+"_bucket", "le", le, cumulative[i])
		}
		// The engine keeps bucket counts only, so no _sum series is exposed.
		w.sample(internaldefs.LatencyPromName+"_count", "", "", cumulative[len(cumulative)-1])
	}

	w.header(internaldefs.AuditDroppedPromName, internaldefs.AuditDroppedHelp, "counter")
	w.sample(internaldefs.AuditDroppedPromName, "", "", dropped)

	return w.String()
}

type textWriter struct {
	strings.Builder
}

func (w *textWriter) header(name, help, kind string) {
	w.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	w.WriteString("# TYPE " + name + " " + kind + "\n")
}

// sample writes one series line. An empty label writes it unlabeled.
func (w *textWriter) sample(name, label, value string, v uint64) {
	w.WriteString(name)
	if label != "" {
		w.WriteString("{" + label + "=" + strconv.Quote(value) + "}")
	}
	w.WriteByte(' ')
	w.WriteString(strconv.FormatUint(v, 10))
	w.WriteByte('\n')
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}
