// Package config provides centralized configuration management for mesh
// services through environment variables with sensible defaults.
//
// # Overview
//
// The config package loads application configuration from environment
// variables, providing a single source of truth for:
//   - Orchestrator concurrency and timeout tuning
//   - Feature toggles (fallback strategies, health monitoring, prompt optimization)
//   - Registry heartbeat and correlation sweep intervals
//   - Event bus backpressure tuning (queue capacity, worker concurrency, dead-lettering)
//   - Observability stack endpoints and service metadata
//
// All configuration values have sensible defaults, so services can run without
// any environment variable configuration.
//
// # Quick Start
//
// Load configuration in your service:
//
//	cfg := config.Load()
//	fmt.Printf("Max concurrent requests: %d\n", cfg.MaxConcurrentRequests)
//	fmt.Printf("Jaeger: %s\n", cfg.JaegerEndpoint)
//	fmt.Printf("Environment: %s\n", cfg.Environment)
//
// # Configuration Fields
//
// **Orchestrator Tuning**:
//   - AMCP_MAX_CONCURRENT_REQUESTS: in-flight request cap (default: 100)
//   - AMCP_DEFAULT_TIMEOUT_MS: default request timeout (default: 30000)
//   - AMCP_TASK_TIMEOUT_MS: per-task timeout (default: 15000)
//   - AMCP_LLM_TIMEOUT_MS: LLM call timeout (default: 30000)
//
// **Feature Toggles**:
//   - AMCP_ENABLE_FALLBACK_STRATEGIES: enable fallback manager (default: true)
//   - AMCP_ENABLE_HEALTH_MONITORING: enable registry health monitoring (default: true)
//   - AMCP_ENABLE_PROMPT_OPTIMIZATION: enable prompt engine optimization (default: true)
//
// **Registry / Correlation Tuning**:
//   - AMCP_HEARTBEAT_INTERVAL_SEC: agent heartbeat interval (default: 30)
//   - AMCP_HEARTBEAT_STALE_SEC: heartbeat staleness threshold (default: 120)
//   - AMCP_CORRELATION_SWEEP_MS: correlation tracker sweep interval (default: 1000)
//
// **Bus Tuning**:
//   - AMCP_SUBSCRIPTION_QUEUE_CAP: per-subscription queue capacity (default: 10000)
//   - AMCP_SUBSCRIPTION_CONCURRENCY: per-subscription worker count (default: 16)
//   - AMCP_DEADLETTER_ENABLED: route exhausted retries to a dead letter topic (default: true)
//
// **Service Metadata**:
//   - AMCP_SERVICE_NAME: service name for observability (default: "amcp-mesh")
//   - AMCP_SERVICE_VERSION: service version (default: "0.1.0")
//   - AMCP_JAEGER_ENDPOINT: Jaeger OTLP endpoint (default: "127.0.0.1:4317")
//   - AMCP_PROMETHEUS_PORT: Prometheus port (default: "9090")
//   - AMCP_ENVIRONMENT: deployment environment (default: "development")
//   - AMCP_LOG_LEVEL: logging level - DEBUG, INFO, WARN, ERROR (default: "INFO")
//
// # Usage Examples
//
// **Basic Configuration**:
//
//	cfg := config.Load()
//	orchestrator.New(..., orchestrator.Config{
//	    MaxConcurrentRequests: cfg.MaxConcurrentRequests,
//	    DefaultTimeout:        time.Duration(cfg.DefaultTimeoutMs) * time.Millisecond,
//	})
//
// **Custom Environment**:
//
//	os.Setenv("AMCP_MAX_CONCURRENT_REQUESTS", "250")
//	os.Setenv("AMCP_ENVIRONMENT", "production")
//	os.Setenv("AMCP_LOG_LEVEL", "WARN")
//
//	cfg := config.Load()
//	// Uses production values
//
// # Configuration Precedence
//
// Configuration is loaded in this order:
//  1. Environment variables (if set)
//  2. Default values (if not set)
//
// # Development vs Production
//
// **Development (defaults)**:
//
//	AMCP_ENVIRONMENT=development
//	AMCP_LOG_LEVEL=INFO
//	AMCP_ENABLE_FALLBACK_STRATEGIES=true
//
// **Production (recommended)**:
//
//	AMCP_ENVIRONMENT=production
//	AMCP_LOG_LEVEL=WARN
//	AMCP_MAX_CONCURRENT_REQUESTS=500
//	AMCP_SERVICE_VERSION=1.2.3
//
// # Integration with Other Packages
//
// The config package is used by:
//
// **observability.DefaultConfig()**:
//
//	func DefaultConfig(serviceName string) observability.Config {
//	    appConfig := config.Load()
//	    return observability.Config{
//	        ServiceName:    serviceName,
//	        ServiceVersion: appConfig.ServiceVersion,
//	        JaegerEndpoint: appConfig.JaegerEndpoint,
//	        // ...
//	    }
//	}
//
// **cmd/meshd**:
//
//	cfg := config.Load()
//	orchestrator.New(..., orchestrator.Config{
//	    MaxConcurrentRequests: cfg.MaxConcurrentRequests,
//	})
//
// # Best Practices
//
// **Use Load() once per service**:
//
//	// In main.go
//	cfg := config.Load()
//	// Pass to components that need it
//
// **Don't mutate AppConfig**:
//
//	// AppConfig is a read-only snapshot of environment at startup
//	cfg := config.Load()
//	// Don't modify config fields after loading
//
// # Thread Safety
//
// AppConfig is safe to read from multiple goroutines once loaded.
// Do not modify AppConfig fields after calling Load().
package config
