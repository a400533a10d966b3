// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the notes service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	JWTSecret         string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	CORSOrigins       []string      // Exact origins or "*.example.com" wildcards; "*" admits any origin without credentials
	WatchInterval     time.Duration // Progress stream sampling period
	TitleTimeout      time.Duration // Upper bound on the title lookup during submission
	SentryDSN         string
	SentryEnvironment string
	Release           string
}

// StorageConfig selects and configures the record, artifact and credential backends.
type StorageConfig struct {
	RecordBackend     string // memory, postgres, redis
	ArtifactBackend   string // memory, gcs, s3
	CredentialBackend string // memory, redis

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GCSBucket          string
	GCSCredentialsFile string

	S3Bucket   string
	S3Region   string
	S3Endpoint string // Optional, e.g. MinIO
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8000"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		JWTSecret:         GetSecret("JWT_SECRET"),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		CORSOrigins:       GetListEnv("CORS_ALLOWED_ORIGINS", []string{"https://www.youtube.com", "*.youtube.com"}),
		WatchInterval:     GetDurationEnv("WATCH_INTERVAL", 2*time.Second),
		TitleTimeout:      GetDurationEnv("TITLE_TIMEOUT", 5*time.Second),
		SentryDSN:         GetSecret("SENTRY_DSN"),
		SentryEnvironment: GetEnv("SENTRY_ENVIRONMENT", "development"),
		Release:           GetEnv("RELEASE", "dev"),
	}
}

// LoadStorageConfig loads storage backend configuration from environment variables.
func LoadStorageConfig() *StorageConfig {
	return &StorageConfig{
		RecordBackend:      GetEnv("RECORD_STORE", "memory"),
		ArtifactBackend:    GetEnv("ARTIFACT_STORE", "memory"),
		CredentialBackend:  GetEnv("CREDENTIAL_STORE", "memory"),
		DatabaseURL:        GetSecret("DATABASE_URL"),
		RedisAddr:          GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      GetSecret("REDIS_PASSWORD"),
		RedisDB:            GetIntEnv("REDIS_DB", 0),
		GCSBucket:          GetEnv("GCS_BUCKET_NAME", "yt-note-maker-notes"),
		GCSCredentialsFile: GetEnv("GCS_CREDENTIALS_FILE", ""),
		S3Bucket:           GetEnv("S3_BUCKET", ""),
		S3Region:           GetEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:         GetEnv("S3_ENDPOINT", ""),
	}
}
