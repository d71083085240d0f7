// Package metrics provides build and sync metrics for sitebuilder.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection never requires nil checks. When
// monitoring.metrics.enabled is set, `build --serve` swaps in a
// PrometheusRecorder and exposes it with HTTPHandler.
package metrics
