// Package api hosts the optional operator listener that runs alongside a batch
// run. Routes:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the live status of the current run.
package api
