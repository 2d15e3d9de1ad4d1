package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric is a single data point destined for CloudWatch.
type Metric struct {
	Name       string
	Value      float64
	Unit       cwtypes.StandardUnit
	Dimensions map[string]string
	Timestamp  time.Time
}

// MetricsEmitter writes metric data points under one namespace.
type MetricsEmitter struct {
	CloudWatch CloudWatchAPI
	Namespace  string
}

// NewMetricsEmitter returns a MetricsEmitter for namespace.
func NewMetricsEmitter(cw CloudWatchAPI, namespace string) *MetricsEmitter {
	return &MetricsEmitter{CloudWatch: cw, Namespace: namespace}
}

// maxDatumsPerCall is the PutMetricData batch limit.
const maxDatumsPerCall = 1000

// Put sends metrics in as few PutMetricData calls as the API allows.
func (e *MetricsEmitter) Put(ctx context.Context, metrics ...Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	data := make([]cwtypes.MetricDatum, 0, len(metrics))
	for _, m := range metrics {
		unit := m.Unit
		if unit == "" {
			unit = cwtypes.StandardUnitCount
		}
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		d := cwtypes.MetricDatum{
			MetricName: sdkaws.String(m.Name),
			Value:      sdkaws.Float64(m.Value),
			Unit:       unit,
			Timestamp:  sdkaws.Time(ts),
		}
		for k, v := range m.Dimensions {
			d.Dimensions = append(d.Dimensions, cwtypes.Dimension{Name: sdkaws.String(k), Value: sdkaws.String(v)})
		}
		data = append(data, d)
	}

	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(data))
		_, err := e.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  sdkaws.String(e.Namespace),
			MetricData: data[start:end],
		})
		if err != nil {
			return fmt.Errorf("put metric data: %w", err)
		}
	}
	return nil
}
