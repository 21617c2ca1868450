// Package metrics exports Prometheus collectors for the offer, task and
// controller paths, plus an optional /metrics HTTP listener.
package metrics
