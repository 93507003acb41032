// Package prometheus provides a Prometheus collector for authcore metrics.
//
// [NewPrometheusExporter] accepts an [authcore.Engine] and implements
// [prometheus.Collector] over the engine's metrics snapshot. Counter names are
// prefixed authcore_*_total; the single histogram is
// authcore_validate_latency_seconds. [PrometheusExporter.Handler] serves the
// collector from a private registry.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry — callers either mount
//     the Handler or register the collector themselves.
//   - Mutate engine state.
package prometheus
