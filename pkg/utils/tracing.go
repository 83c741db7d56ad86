package utils

const (
	tracesEnabledKey   = "OTEL_TRACES_ENABLED"
	serviceNameKey     = "OTEL_SERVICE_NAME"
	defaultServiceName = "loppi-waitlist"
)

func IsTracingEnabled() bool {
	return GetEnvBool(tracesEnabledKey, false)
}

// OTelServiceName names the service on spans and the gin middleware.
func OTelServiceName() string {
	return GetEnvTrimmedOrDefault(serviceNameKey, defaultServiceName)
}
