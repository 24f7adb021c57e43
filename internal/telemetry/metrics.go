package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service counters.
type Metrics struct {
	Reflections      metric.Int64Counter
	ReflectionErrors metric.Int64Counter
	Drifts           metric.Int64Counter
	MemoriesArchived metric.Int64Counter
	Searches         metric.Int64Counter
	ReflectionTime   metric.Float64Histogram
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	m.Reflections, err = meter.Int64Counter("soulgarden.reflections",
		metric.WithDescription("Number of completed reflections"))
	if err != nil {
		return nil, err
	}

	m.ReflectionErrors, err = meter.Int64Counter("soulgarden.reflections.failed",
		metric.WithDescription("Number of reflections that failed"))
	if err != nil {
		return nil, err
	}

	m.Drifts, err = meter.Int64Counter("soulgarden.identity.drifts",
		metric.WithDescription("Number of identity drifts committed"))
	if err != nil {
		return nil, err
	}

	m.MemoriesArchived, err = meter.Int64Counter("soulgarden.memories.archived",
		metric.WithDescription("Memories moved from rag to archive"))
	if err != nil {
		return nil, err
	}

	m.Searches, err = meter.Int64Counter("soulgarden.memory.searches",
		metric.WithDescription("Number of semantic memory searches"))
	if err != nil {
		return nil, err
	}

	m.ReflectionTime, err = meter.Float64Histogram("soulgarden.reflection.duration_seconds",
		metric.WithDescription("Reflection duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// MustMetrics is NewMetrics for callers that cannot recover from a broken
// meter provider, such as tests and the CLI.
func MustMetrics() *Metrics {
	m, err := NewMetrics()
	if err != nil {
		panic(err)
	}
	return m
}
