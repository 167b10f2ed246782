// Package prometheus renders goIdentity engine metrics in the Prometheus text
// exposition format.
//
// Each flow is a single counter labeled by outcome, for example
//
//	goidentity_sign_in_total{outcome="locked_out"} 2
//
// Sign-in latency is the histogram goidentity_sign_in_latency_seconds and is
// omitted when the engine runs without latency buckets. Nothing is registered
// globally; callers mount [PrometheusExporter.Handler] where they like.
package prometheus
