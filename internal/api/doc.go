// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/audits for audit submission, GET /v1/audits/{id} for results.
//   - GET /v1/batches/{id} and /v1/batches/{id}/tiers for batch runs
//     recorded by the CLI.
package api
