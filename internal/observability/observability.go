// Package observability carries the operational surface of the pipeline:
// the structured JSON logger, the Prometheus metric set, component health
// tracking and the HTTP server that exposes /metrics, /health and /ready.
//
// Everything here is shared plumbing. Domain packages own which metrics
// they increment; this package only defines and serves them.
package observability
