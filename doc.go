// Package main hosts the siteauditor executable.
//
// Architecture overview:
//   - Audit pipeline: internal/audit.Orchestrator loads a page (static Colly fetch, upgraded to a headless
//     Chromedp capture when the browser is enabled), extracts signals with goquery, scores the five weighted
//     categories in internal/scoring, and assembles the result with its ranked opportunities. Screenshots and
//     per-site Markdown reports are written through the configured blob store (local/GCS/memory).
//   - Batch runs: internal/batch fans a prospect list out over a bounded worker pool; one bad site never
//     takes down the run. Progress events flow through internal/progress.Hub to zap logs, the batch store,
//     and Prometheus. Batch artifacts (results CSV, tier-grouped Markdown summary) are rendered by
//     internal/report.
//   - HTTP API: internal/api.Server exposes health, metrics, audit submission, and result/batch read
//     endpoints. Submitted audits are validated, persisted as PENDING via the AuditRepository, and enqueued
//     for the worker pool.
//   - Dispatcher & queue: server-side jobs flow through a bounded in-memory queue sized by
//     config.Server.QueueDepth and are fanned out to a fixed worker pool sized by config.Server.Workers.
//     Context cancellation stops workers cleanly on shutdown.
//   - Persistence & fanout: results are upserted into Postgres (pgx) or kept in memory, and a compact
//     Pub/Sub completion event is published when a topic is configured.
//   - Configuration & plumbing: Viper populates config from env/files (AUDITOR_* prefix, optional .env via
//     godotenv); zap provides structured logging; Prometheus metrics are exported via the telemetry
//     middleware and the /metrics handler; OpenTelemetry tracing exports to Cloud Trace when a project ID
//     is set.
//
// Operational notes:
//   - Concurrency model: batch runs and the server worker pool are both bounded; headless captures have
//     their own semaphore inside the Chromedp loader, and the static loader rate-limits per host. Shutdown
//     is coordinated via context cancellation propagated from the root command through the dispatcher to
//     workers.
//   - The vision judge calls the Anthropic API under a per-minute rate limit. Without an API key the
//     judge is disabled and the visual category scores from measurable signals alone.
//   - Cloud Run: the HTTP server listens on the configured port, stays stateless across requests, and
//     reacts to SIGTERM with a graceful drain of in-flight audits.
//
// Quick checklist:
//   - Configure env vars: AUDITOR_SERVER_PORT, AUDITOR_BROWSER_ENABLED, AUDITOR_JUDGE_API_KEY, storage
//     (AUDITOR_STORAGE_*), db driver/DSN, and pubsub project/topic when fanout is required.
//   - Run locally: go run . audit https://example-cpa.com, or batch/resume/serve (optionally with
//     -config config.yaml).
package main
