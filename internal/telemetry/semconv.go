package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Metric names.
const (
	MetricPolls          = "orderlens.polls"
	MetricPollDuration   = "orderlens.poll.duration"
	MetricDecodeFailures = "orderlens.decode.failures"
	MetricPriceFailures  = "orderlens.price.failures"
	MetricPositions      = "orderlens.positions"
	MetricLimitOrders    = "orderlens.limit_orders"
	MetricStreamClients  = "orderlens.stream.clients"
	meterName            = "github.com/coachpo/orderlens"
)

// Attribute keys.
const (
	AttrEnvironment = attribute.Key("environment")
	AttrOutcome     = attribute.Key("outcome")
	AttrLayout      = attribute.Key("layout")
	AttrToken       = attribute.Key("token")
	AttrSide        = attribute.Key("side")
)

// PollAttributes labels a finished poll.
func PollAttributes(environment, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrOutcome.String(outcome),
	}
}

// DecodeAttributes labels decode failures by account layout.
func DecodeAttributes(environment, layout string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrLayout.String(layout),
	}
}

// OrderAttributes labels per-token order gauges.
func OrderAttributes(environment, token, side string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrToken.String(token),
		AttrSide.String(side),
	}
}
