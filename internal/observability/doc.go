// Package observability provides structured logging and Prometheus metrics
// for the LLM gateway.
//
// This package implements:
//   - zap logger construction from configuration (JSON or console)
//   - request ID propagation into log fields
//   - Prometheus collectors for provider attempts, fallbacks and generations
//
// Services depend on the Metrics interface; NopMetrics keeps them usable
// when metrics are disabled.
package observability
