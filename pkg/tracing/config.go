package tracing

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the tracing configuration. An empty Endpoint disables export
// but keeps context propagation.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	Endpoint      string
	Insecure      bool
	SamplingRatio float64
}

// NewConfig fills the optional settings from the OTEL_* environment.
func NewConfig(serviceName, endpoint string) *Config {
	return &Config{
		ServiceName:    serviceName,
		ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		Endpoint:       endpoint,
		Insecure:       getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		SamplingRatio:  getEnvFloat("OTEL_TRACE_SAMPLE_RATIO", 1.0),
	}
}

func (c *Config) Enabled() bool {
	return c.Endpoint != ""
}

func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return &ConfigError{Field: "ServiceName", Message: "service name cannot be empty"}
	}
	if c.SamplingRatio < 0 || c.SamplingRatio > 1 {
		return &ConfigError{Field: "SamplingRatio", Message: "sampling ratio must be between 0 and 1"}
	}
	return nil
}

type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
