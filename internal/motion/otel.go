package motion

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/actorsteer/actorsteer/internal/motion"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
