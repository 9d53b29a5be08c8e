package voice

import (
	"go.opentelemetry.io/otel"

	"github.com/lukasbauer/kaskada/internal/telemetry"
)

const scopeName = "github.com/lukasbauer/kaskada/internal/voice"

var (
	tracer = otel.Tracer(scopeName)
	logger = telemetry.NewLogger(scopeName)
)
