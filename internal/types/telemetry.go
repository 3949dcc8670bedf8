package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricProviderLatency    = "ProviderLatency"
	MetricExternalAPIFailure = "ExternalAPIFailure"
	MetricResolutionSkipped  = "ResolutionSkipped"
	MetricStaleResult        = "StaleResultDiscarded"
	MetricEnrichDuration     = "EnrichDuration"
	MetricAPILatency         = "APILatency"
	MetricAPIRequestCount    = "APIRequestCount"

	// Dimension Keys
	DimProvider  = "Provider"
	DimOperation = "Operation"
	DimReason    = "Reason"
	DimEndpoint  = "Endpoint"
	DimMethod    = "Method"
	DimStatus    = "Status"

	// Metric Namespace
	MetricNamespace = "Roadcast"
)

// Provider names used as metric dimensions and log fields.
const (
	ProviderMapbox    = "mapbox"
	ProviderGoogle    = "google"
	ProviderOpenMeteo = "open_meteo"
	ProviderNWS       = "nws"
)
