package types

// Telemetry metric names for CloudWatch.
const (
	MetricNotificationSubmitted = "NotificationSubmitted"
	MetricPeek                  = "Peek"
	MetricPeekConflict          = "PeekConflict"
	MetricBundleWeight          = "BundleWeight"
	MetricContentRequest        = "ContentRequest"
	MetricContentLatency        = "ContentRequestLatency"
	MetricDequeue               = "Dequeue"
	MetricAPILatency            = "APILatency"

	DimOrigin   = "Origin"
	DimOutcome  = "Outcome"
	DimEndpoint = "Endpoint"

	// MetricNamespace is used when configuration does not override it.
	MetricNamespace = "PostOffice"
)
