package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Region string
	// EndpointURL overrides every AWS service endpoint (e.g. a LocalStack address).
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	CABundlePath    string
	MaxAttempts     int

	LogLevel  string
	LogFormat string

	// ProductionImage is the default image reference for new revisions.
	ProductionImage     string
	ESHost              string
	LoggingBucketSuffix string
	SidecarTemplateDir  string
	MetricsTextfile     string
}

func Load() (*Config, error) {
	maxAttempts, err := strconv.Atoi(getEnv("AWS_MAX_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("parse AWS_MAX_ATTEMPTS: %w", err)
	}

	cfg := &Config{
		Region:              getEnv("AWS_REGION", getEnv("AWS_DEFAULT_REGION", "us-east-2")),
		EndpointURL:         getEnv("AWS_ENDPOINT_URL", ""),
		AccessKeyID:         getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
		CABundlePath:        getEnv("AWS_CA_BUNDLE", ""),
		MaxAttempts:         maxAttempts,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		ProductionImage:     getEnv("PRODUCTION_IMAGE", getEnv("production_image", "")),
		ESHost:              getEnv("ES_HOST", ""),
		LoggingBucketSuffix: getEnv("LOGGING_BUCKET_SUFFIX", "traderlion-logging-configs"),
		SidecarTemplateDir:  getEnv("SIDECAR_TEMPLATE_DIR", ""),
		MetricsTextfile:     getEnv("METRICS_TEXTFILE", ""),
	}

	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var missing []string
	if c.Region == "" {
		missing = append(missing, "AWS_REGION")
	}
	if c.LoggingBucketSuffix == "" {
		missing = append(missing, "LOGGING_BUCKET_SUFFIX")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must both be set")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("AWS_MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// StaticCredentials reports whether explicit access keys override the default chain.
func (c *Config) StaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
