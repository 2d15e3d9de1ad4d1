package main

import (
	"context"
	"encoding/json"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/aws"
	"github.com/imrishuroy/go-jewelry-orders/internal/events"
)

// Metric names published by the worker.
const (
	MetricOrdersCreated     = "OrdersCreated"
	MetricOrderValue        = "OrderValue"
	MetricStatusTransitions = "StatusTransitions"
	MetricGoldRate          = "GoldRate"
	MetricSilverRate        = "SilverRate"
)

// MetricsSink receives the metrics derived from one event.
type MetricsSink interface {
	Put(ctx context.Context, metrics ...aws.Metric) error
}

// Processor turns queue events into CloudWatch metrics.
type Processor struct {
	metrics MetricsSink
	log     *zap.Logger
}

// NewProcessor creates a Processor writing to metrics.
func NewProcessor(metrics MetricsSink, log *zap.Logger) *Processor {
	return &Processor{metrics: metrics, log: log}
}

// Handle processes an SQS batch. Undecodable messages are logged and
// dropped; messages whose metrics could not be written are reported back
// so SQS redelivers only those.
func (p *Processor) Handle(ctx context.Context, ev lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
	var resp lambdaevents.SQSEventResponse
	for _, rec := range ev.Records {
		var msg events.Event
		if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
			p.log.Error("drop malformed event", zap.String("message_id", rec.MessageId), zap.Error(err))
			continue
		}

		metrics := metricsFor(msg)
		if len(metrics) == 0 {
			p.log.Debug("event has no metrics", zap.String("event_type", msg.Type))
			continue
		}
		if err := p.metrics.Put(ctx, metrics...); err != nil {
			p.log.Warn("put metrics failed",
				zap.String("message_id", rec.MessageId),
				zap.String("event_type", msg.Type),
				zap.Error(err),
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, lambdaevents.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func metricsFor(ev events.Event) []aws.Metric {
	ts := ev.OccurredAt
	switch ev.Type {
	case events.OrderCreated:
		return []aws.Metric{
			{Name: MetricOrdersCreated, Value: 1, Timestamp: ts},
			{Name: MetricOrderValue, Value: ev.Total, Unit: cwtypes.StandardUnitNone, Timestamp: ts},
		}
	case events.OrderStatusChanged:
		return []aws.Metric{{
			Name:       MetricStatusTransitions,
			Value:      1,
			Dimensions: map[string]string{"Status": ev.Status},
			Timestamp:  ts,
		}}
	case events.RateRecorded:
		return []aws.Metric{
			{Name: MetricGoldRate, Value: ev.GoldRate, Unit: cwtypes.StandardUnitNone, Timestamp: ts},
			{Name: MetricSilverRate, Value: ev.SilverRate, Unit: cwtypes.StandardUnitNone, Timestamp: ts},
		}
	}
	return nil
}
