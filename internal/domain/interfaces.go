package domain

// Recorder receives metric samples from instrumented call sites.
// Implementations must never block the measured operation.
type Recorder interface {
	Record(kind MetricKind, value float64)
}

// EvaluationStore persists completed execution reports.
type EvaluationStore interface {
	SaveEvaluation(report *ExecutionReport) error
}

// NopRecorder discards all samples. Useful as a default and in tests.
type NopRecorder struct{}

func (NopRecorder) Record(MetricKind, float64) {}
