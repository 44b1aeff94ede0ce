// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/passes to run an orchestrator pass on demand.
//   - GET /v1/sources and /v1/runs/{run_id} for read-only progress via the
//     Repository interface.
package api
