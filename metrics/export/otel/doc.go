// Package otel binds goIdentity engine metrics to OpenTelemetry instruments.
//
// [NewOTelExporter] creates one observable counter per flow (goidentity.sign_in,
// goidentity.token, ...) whose data points carry an "outcome" attribute. Sign-in
// latency is reported as goidentity.sign_in.latency.bucket, a cumulative count
// per "le" bound, together with goidentity.sign_in.latency.count. One callback
// reads [goIdentity.Engine.MetricsSnapshot] per collection.
//
// The caller owns the MeterProvider.
package otel
