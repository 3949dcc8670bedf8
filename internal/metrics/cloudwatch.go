// Package metrics publishes service telemetry to AWS CloudWatch.
//
// Metrics emitted:
//   - ProviderLatency: Dims {Provider, Operation} -- every provider call
//   - ExternalAPIFailure: Dims {Provider, Operation} -- failed provider calls
//   - ResolutionSkipped: Dims {Reason} -- sampled points dropped by the planner
//   - EnrichDuration: No dims -- wall time of one route enrichment
//   - StaleResultDiscarded: No dims -- superseded enrichments
//   - APILatency / APIRequestCount: Dims {Method, Endpoint, Status}
//
// Publishing is best effort: a failed PutMetricData is logged and dropped.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"roadcast/internal/core"
	"roadcast/internal/external"
	"roadcast/internal/refresh"
	"roadcast/internal/routing"
	"roadcast/internal/types"
	"roadcast/internal/weather"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Recorder is the union of every metrics hook the service wires.
type Recorder interface {
	external.CallObserver
	routing.PlannerMetrics
	weather.AttributorMetrics
	refresh.CoordinatorMetrics
	core.MetricsCollector
}

var (
	_ Recorder = (*CloudWatchMetrics)(nil)
	_ Recorder = NoopMetrics{}
)

// CloudWatchMetrics implements Recorder by emitting to CloudWatch.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to namespace.
// An empty namespace uses types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// ObserveCall emits ProviderLatency for every call and ExternalAPIFailure
// for calls that failed. "No route" and "no place" answers are valid
// results, not failures.
func (m *CloudWatchMetrics) ObserveCall(ctx context.Context, provider, operation string, elapsed time.Duration, err error) {
	dims := []cwtypes.Dimension{
		dim(types.DimProvider, provider),
		dim(types.DimOperation, operation),
	}
	data := []cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricProviderLatency),
		Value:      aws.Float64(float64(elapsed.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: dims,
	}}
	if isFailure(err) {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricExternalAPIFailure),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		})
	}
	m.put(ctx, data, "provider", provider, "operation", operation)
}

func isFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, external.ErrNoRoute) &&
		!errors.Is(err, external.ErrPlaceNotFound) &&
		!errors.Is(err, context.Canceled)
}

// RecordResolutionSkipped counts a sampled point the planner dropped.
func (m *CloudWatchMetrics) RecordResolutionSkipped(ctx context.Context, reason string) {
	m.put(ctx, []cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricResolutionSkipped),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(types.DimReason, reason)},
	}}, "reason", reason)
}

// RecordEnrichDuration emits the wall time of one enrichment pass.
func (m *CloudWatchMetrics) RecordEnrichDuration(ctx context.Context, steps int, elapsed time.Duration) {
	m.put(ctx, []cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricEnrichDuration),
		Value:      aws.Float64(float64(elapsed.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	}}, "steps", steps)
}

// RecordStaleResult counts an enrichment result discarded as superseded.
func (m *CloudWatchMetrics) RecordStaleResult(ctx context.Context) {
	m.put(ctx, []cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricStaleResult),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	}})
}

// RecordRequest emits API latency and count for one HTTP request.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		dim(types.DimMethod, method),
		dim(types.DimEndpoint, endpoint),
		dim(types.DimStatus, status),
	}
	m.put(context.Background(), []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
		{
			MetricName: aws.String(types.MetricAPIRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	}, "endpoint", endpoint)
}

// put sends data and logs failures with the given attributes. The request
// context may already be cancelled by the time a metric is recorded, so
// its values are kept but its cancellation is not.
func (m *CloudWatchMetrics) put(ctx context.Context, data []cwtypes.MetricDatum, attrs ...any) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(context.WithoutCancel(ctx), input); err != nil {
		m.logger.Error("failed to put metric data",
			append([]any{"error", err.Error(), "metric", aws.ToString(data[0].MetricName)}, attrs...)...,
		)
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// NoopMetrics discards everything. It is used when metrics are disabled.
type NoopMetrics struct{}

func (NoopMetrics) ObserveCall(context.Context, string, string, time.Duration, error) {}
func (NoopMetrics) RecordResolutionSkipped(context.Context, string)                  {}
func (NoopMetrics) RecordEnrichDuration(context.Context, int, time.Duration)         {}
func (NoopMetrics) RecordStaleResult(context.Context)                                {}
func (NoopMetrics) RecordRequest(string, string, string, time.Duration)              {}
