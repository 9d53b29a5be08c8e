package llm

import (
	"go.opentelemetry.io/otel"

	"github.com/lukasbauer/kaskada/internal/telemetry"
)

const scopeName = "github.com/lukasbauer/kaskada/internal/llm"

var (
	tracer = otel.Tracer(scopeName)
	logger = telemetry.NewLogger(scopeName)
)
