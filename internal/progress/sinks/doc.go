// Package sinks implements concrete batch-progress consumers: Prometheus
// collectors, repository-backed persistence, and structured logging. Each
// sink satisfies the progress.Sink interface and tolerates repeated
// Consume calls from the hub's flush loop.
package sinks
