// Package api hosts the HTTP server, middleware, and handlers. Routes:
//   - POST /count runs the counting pipeline for a form or JSON {url, element}.
//   - GET /healthz and /readyz for liveness and store readiness probes.
//   - GET /metrics for Prometheus scraping.
package api
