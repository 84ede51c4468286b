// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/sites and /v1/categories for registry CRUD with slug resolution.
//   - /v1/tasks for crawl task submission, status, result, and cancellation.
package api
