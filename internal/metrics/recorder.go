package metrics

import "time"

// ResultLabel enumerates result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultSkipped ResultLabel = "skipped"
)

// BuildOutcome enumerates what happened to one rebuild request.
type BuildOutcome string

const (
	BuildCompiled  BuildOutcome = "compiled"
	BuildCoalesced BuildOutcome = "coalesced" // superseded by a newer request before compiling
	BuildFailed    BuildOutcome = "failed"
	BuildDropped   BuildOutcome = "dropped" // compiled but a newer result was already published
)

// Recorder defines observability hooks for builds and sync sessions.
type Recorder interface {
	ObserveCompileDuration(d time.Duration)
	ObserveLoadDuration(d time.Duration)
	IncBuildOutcome(outcome BuildOutcome)
	SetBundleSize(bytes int64, inputs int)
	IncSyncPhase(phase string, result ResultLabel)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveCompileDuration(time.Duration) {}
func (NoopRecorder) ObserveLoadDuration(time.Duration)    {}
func (NoopRecorder) IncBuildOutcome(BuildOutcome)         {}
func (NoopRecorder) SetBundleSize(int64, int)             {}
func (NoopRecorder) IncSyncPhase(string, ResultLabel)     {}
