// Package telemetry publishes post office metrics to CloudWatch.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"postoffice/internal/types"
)

// Recorder receives the operational events worth graphing. Implementations
// must not fail the caller; publishing errors are logged and dropped.
type Recorder interface {
	RecordSubmit(ctx context.Context, origin types.Origin, outcome string)
	RecordPeek(ctx context.Context, outcome string)
	RecordPeekConflict(ctx context.Context)
	RecordBundleWeight(ctx context.Context, origin types.Origin, weight int)
	RecordContentRequest(ctx context.Context, origin types.Origin, outcome string, latency time.Duration)
	RecordDequeue(ctx context.Context, outcome string)
	RecordAPILatency(ctx context.Context, endpoint string, latency time.Duration)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Recorder = (*CloudWatchRecorder)(nil)

// CloudWatchRecorder emits one PutMetricData call per event.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRecorder creates a recorder publishing to namespace. An empty
// namespace falls back to types.MetricNamespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func (r *CloudWatchRecorder) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.WarnContext(ctx, "failed to publish metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err.Error(),
		)
	}
}

func count(name string, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}
}

func millis(name string, d time.Duration, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: dims,
	}
}

// RecordSubmit counts an intake outcome (accepted, duplicate, rejected).
func (r *CloudWatchRecorder) RecordSubmit(ctx context.Context, origin types.Origin, outcome string) {
	r.put(ctx, count(types.MetricNotificationSubmitted,
		dim(types.DimOrigin, string(origin)), dim(types.DimOutcome, outcome)))
}

// RecordPeek counts a peek by outcome (existing, created, empty).
func (r *CloudWatchRecorder) RecordPeek(ctx context.Context, outcome string) {
	r.put(ctx, count(types.MetricPeek, dim(types.DimOutcome, outcome)))
}

// RecordPeekConflict counts a lost bundle-creation race.
func (r *CloudWatchRecorder) RecordPeekConflict(ctx context.Context) {
	r.put(ctx, count(types.MetricPeekConflict))
}

// RecordBundleWeight records the accumulated weight of a new bundle.
func (r *CloudWatchRecorder) RecordBundleWeight(ctx context.Context, origin types.Origin, weight int) {
	r.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricBundleWeight),
		Value:      aws.Float64(float64(weight)),
		Unit:       cwtypes.StandardUnitNone,
		Dimensions: []cwtypes.Dimension{dim(types.DimOrigin, string(origin))},
	})
}

// RecordContentRequest counts a content round trip and its latency.
func (r *CloudWatchRecorder) RecordContentRequest(ctx context.Context, origin types.Origin, outcome string, latency time.Duration) {
	r.put(ctx, count(types.MetricContentRequest,
		dim(types.DimOrigin, string(origin)), dim(types.DimOutcome, outcome)))
	r.put(ctx, millis(types.MetricContentLatency, latency, dim(types.DimOrigin, string(origin))))
}

// RecordDequeue counts an acknowledgement (completed, already_completed).
func (r *CloudWatchRecorder) RecordDequeue(ctx context.Context, outcome string) {
	r.put(ctx, count(types.MetricDequeue, dim(types.DimOutcome, outcome)))
}

// RecordAPILatency records handler latency for a route pattern.
func (r *CloudWatchRecorder) RecordAPILatency(ctx context.Context, endpoint string, latency time.Duration) {
	r.put(ctx, millis(types.MetricAPILatency, latency, dim(types.DimEndpoint, endpoint)))
}

// Nop discards every event.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordSubmit(context.Context, types.Origin, string)                       {}
func (Nop) RecordPeek(context.Context, string)                                       {}
func (Nop) RecordPeekConflict(context.Context)                                       {}
func (Nop) RecordBundleWeight(context.Context, types.Origin, int)                    {}
func (Nop) RecordContentRequest(context.Context, types.Origin, string, time.Duration) {}
func (Nop) RecordDequeue(context.Context, string)                                    {}
func (Nop) RecordAPILatency(context.Context, string, time.Duration)                  {}
