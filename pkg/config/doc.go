// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// defaults for every setting. Default values live in defaults.go.
//
// # Configuration Structure
//
// Cache settings:
//
//	PRISM_PROJECT_DIR="."
//	PRISM_CACHE_DIR=".prism"
//	PRISM_CACHE_ENABLED="true"
//	PRISM_WRITE_THROUGH="true"
//	PRISM_TRACK_HITS="false"
//	PRISM_MAX_PARALLEL="4"
//
// Lock settings:
//
//	PRISM_CROSS_PROCESS_LOCK="true"
//	PRISM_LOCK_BACKEND="file"  # file, redis
//	PRISM_REDIS_URL="redis://localhost:6379/0"
//	PRISM_LOCK_RETRIES="20"
//	PRISM_LOCK_MIN_BACKOFF="20ms"
//	PRISM_LOCK_MAX_BACKOFF="500ms"
//
// Storage settings:
//
//	PRISM_STORAGE_TYPE="s3"  # filesystem, s3
//	PRISM_COMPRESS="true"
//	PRISM_S3_BUCKET="prism-cache"
//	PRISM_S3_REGION="us-east-1"
//	PRISM_S3_ENDPOINT="http://localhost:9000"
//
// Janitor settings:
//
//	PRISM_METRICS_ADDR=":9090"
//	PRISM_PRUNE_SCHEDULE="@daily"
//	PRISM_PRUNE_MAX_IDLE="720h"
//
// Observability settings:
//
//	PRISM_LOG_LEVEL="info"  # debug, info, warn, error
//	PRISM_OTEL_ENABLED="true"
//	PRISM_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	orchestrator, err := compilecache.NewOrchestrator(cfg.CompileCache(), opts)
package config
