// Package prometheus exposes authcore metrics through client_golang.
//
// [Exporter] implements prometheus.Collector and reads
// [authcore.Engine.MetricsSnapshot] on every scrape. Counter names are
// prefixed authcore_*_total; the single histogram is
// authcore_current_identity_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register
//     the Exporter themselves or mount Handler.
//   - Mutate engine state.
package prometheus
