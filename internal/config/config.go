package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/whorules/arm-controller/internal/control"
)

const (
	defaultTimeoutQuery = `100 * (sum by (routeId) (increase(spring_cloud_gateway_requests_seconds_count{httpStatusCode="504"}[1m])) / sum by (routeId) (increase(spring_cloud_gateway_requests_seconds_count[1m])))`
	defaultRetryQuery   = `100 * (sum by (routeId) (increase(spring_cloud_gateway_requests_seconds_count{httpStatusCode=~"502|503"}[1m])) / sum by (routeId) (increase(spring_cloud_gateway_requests_seconds_count[1m])))`
	defaultRejectQuery  = `100 * (sum by (routeId) (increase(spring_cloud_gateway_requests_seconds_count{httpStatusCode="429"}[1m])) / sum by (routeId) (increase(spring_cloud_gateway_requests_seconds_count[1m])))`
	defaultP99Query     = `histogram_quantile(0.99, sum by (le, routeId) (rate(spring_cloud_gateway_requests_seconds_bucket{httpStatusCode=~"2.."}[1m])))`
)

type Config struct {
	Prometheus  PrometheusConfig
	Gateway     GatewayConfig
	Control     ControlConfig
	Timeout     TimeoutConfig
	Retry       RetryConfig
	Concurrency ConcurrencyConfig
	DB          DBConfig
	Redis       RedisConfig
	Alert       AlertConfig
	Tracing     TracingConfig
	Server      ServerConfig
	Log         LogConfig
}

type PrometheusConfig struct {
	URL     string
	Timeout time.Duration
}

type GatewayConfig struct {
	URL                     string
	Timeout                 time.Duration
	RPS                     float64
	Burst                   int
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration
}

type ControlConfig struct {
	TickInterval       time.Duration
	ReadyDelay         time.Duration
	InitAttempts       int
	InitBackoff        time.Duration
	ResourceLabel      string
	PolicyFile         string
	PolicyPollInterval time.Duration
	UnhealthyThreshold int
}

type TimeoutConfig struct {
	Enabled bool
	Query   string
	Policy  control.HysteresisPolicy
}

type RetryConfig struct {
	Enabled      bool
	Query        string
	Policy       control.HysteresisPolicy
	FirstBackoff time.Duration
	MaxBackoff   time.Duration
	Factor       int
	Statuses     []int
	Methods      []string
	SeedRoutes   []string
}

type ConcurrencyConfig struct {
	Enabled bool
	Query   string
	// With guards enabled a route is only acted on when every guard query
	// returned a sample for it.
	GuardsEnabled     bool
	GuardTimeoutQuery string
	GuardLatencyQuery string
	Policy            control.KneePolicy
	MaxWaitMs         int64
}

type DBConfig struct {
	URL                string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	StatementTimeoutMS int
}

type RedisConfig struct {
	URL    string
	Stream string
	MaxLen int64
}

type AlertConfig struct {
	SlackWebhookURL       string
	WebhookURL            string
	Cooldown              time.Duration
	ApplyFailureThreshold int
}

type TracingConfig struct {
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type ServerConfig struct {
	HealthPort int
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Prometheus: PrometheusConfig{
			URL:     getEnv("PROMETHEUS_URL", "http://localhost:9090"),
			Timeout: getEnvDuration("PROMETHEUS_TIMEOUT", 5*time.Second),
		},
		Gateway: GatewayConfig{
			URL:                     getEnv("GATEWAY_URL", "http://localhost:8080"),
			Timeout:                 getEnvDuration("GATEWAY_TIMEOUT", 5*time.Second),
			RPS:                     getEnvFloat("GATEWAY_RPS", 20),
			Burst:                   getEnvInt("GATEWAY_BURST", 10),
			BreakerFailureThreshold: getEnvInt("GATEWAY_BREAKER_FAILURES", 5),
			BreakerOpenTimeout:      getEnvDuration("GATEWAY_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Control: ControlConfig{
			TickInterval:       getEnvDuration("CONTROL_TICK_INTERVAL", 30*time.Second),
			ReadyDelay:         getEnvDuration("CONTROL_READY_DELAY", 3*time.Second),
			InitAttempts:       getEnvInt("CONTROL_INIT_ATTEMPTS", 3),
			InitBackoff:        getEnvDuration("CONTROL_INIT_BACKOFF", time.Second),
			ResourceLabel:      getEnv("CONTROL_RESOURCE_LABEL", "routeId"),
			PolicyFile:         getEnv("CONTROL_POLICY_FILE", ""),
			PolicyPollInterval: getEnvDuration("CONTROL_POLICY_POLL_INTERVAL", 30*time.Second),
			UnhealthyThreshold: getEnvInt("CONTROL_UNHEALTHY_THRESHOLD", 5),
		},
		Timeout: TimeoutConfig{
			Enabled: getEnvBool("TIMEOUT_ENABLED", true),
			Query:   getEnv("TIMEOUT_QUERY", defaultTimeoutQuery),
			Policy: control.HysteresisPolicy{
				Target:                getEnvFloat("TIMEOUT_TARGET", 4),
				DeadbandPct:           getEnvFloat("TIMEOUT_DEADBAND_PCT", 0.75),
				PanicMultiplier:       getEnvFloat("TIMEOUT_PANIC_MULTIPLIER", 2),
				DecreaseStablePeriods: getEnvInt("TIMEOUT_DECREASE_STABLE_PERIODS", 3),
				IncreaseCooldown:      getEnvDuration("TIMEOUT_INCREASE_COOLDOWN", time.Minute),
				DecreaseCooldown:      getEnvDuration("TIMEOUT_DECREASE_COOLDOWN", 3*time.Minute),
				StepSize:              getEnvInt("TIMEOUT_STEP_MS", 50),
				Min:                   getEnvInt("TIMEOUT_MIN_MS", 700),
				Max:                   getEnvInt("TIMEOUT_MAX_MS", 1500),
			},
		},
		Retry: RetryConfig{
			Enabled: getEnvBool("RETRY_ENABLED", true),
			Query:   getEnv("RETRY_QUERY", defaultRetryQuery),
			Policy: control.HysteresisPolicy{
				Target:                getEnvFloat("RETRY_TARGET", 1.0),
				DeadbandPct:           getEnvFloat("RETRY_DEADBAND_PCT", 0.3),
				PanicMultiplier:       getEnvFloat("RETRY_PANIC_MULTIPLIER", 3),
				DecreaseStablePeriods: getEnvInt("RETRY_DECREASE_STABLE_PERIODS", 10),
				IncreaseCooldown:      getEnvDuration("RETRY_INCREASE_COOLDOWN", time.Minute),
				DecreaseCooldown:      getEnvDuration("RETRY_DECREASE_COOLDOWN", 10*time.Minute),
				StepSize:              getEnvInt("RETRY_STEP", 1),
				Min:                   getEnvInt("RETRY_MIN_ATTEMPTS", 1),
				Max:                   getEnvInt("RETRY_MAX_ATTEMPTS", 3),
				PartialIncreaseCap:    getEnvInt("RETRY_PARTIAL_INCREASE_CAP", 2),
			},
			FirstBackoff: getEnvDuration("RETRY_FIRST_BACKOFF", 50*time.Millisecond),
			MaxBackoff:   getEnvDuration("RETRY_MAX_BACKOFF", 250*time.Millisecond),
			Factor:       getEnvInt("RETRY_BACKOFF_FACTOR", 2),
			Methods:      getEnvList("RETRY_METHODS", []string{"GET"}),
			SeedRoutes:   getEnvList("RETRY_SEED_ROUTES", nil),
		},
		Concurrency: ConcurrencyConfig{
			Enabled:           getEnvBool("CONCURRENCY_ENABLED", true),
			Query:             getEnv("CONCURRENCY_QUERY", defaultRejectQuery),
			GuardsEnabled:     getEnvBool("CONCURRENCY_GUARDS_ENABLED", true),
			GuardTimeoutQuery: getEnv("CONCURRENCY_GUARD_TIMEOUT_QUERY", defaultTimeoutQuery),
			GuardLatencyQuery: getEnv("CONCURRENCY_GUARD_LATENCY_QUERY", defaultP99Query),
			Policy: control.KneePolicy{
				TargetLow:    getEnvFloat("CONCURRENCY_TARGET_LOW", 1),
				TargetHigh:   getEnvFloat("CONCURRENCY_TARGET_HIGH", 4),
				HardMax:      getEnvFloat("CONCURRENCY_HARD_MAX", 8),
				ChangeWindow: getEnvDuration("CONCURRENCY_CHANGE_WINDOW", time.Minute),
				StepSize:     getEnvInt("CONCURRENCY_STEP", 1),
				Min:          getEnvInt("CONCURRENCY_MIN", 20),
				Max:          getEnvInt("CONCURRENCY_MAX", 30),
			},
			MaxWaitMs: int64(getEnvInt("CONCURRENCY_MAX_WAIT_MS", 0)),
		},
		DB: DBConfig{
			URL:                getEnv("DB_URL", ""),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 5),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:    time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
			StatementTimeoutMS: getEnvInt("DB_STATEMENT_TIMEOUT_MS", 30000),
		},
		Redis: RedisConfig{
			URL:    getEnv("REDIS_URL", ""),
			Stream: getEnv("REDIS_STREAM", "armctl:setpoints"),
			MaxLen: int64(getEnvInt("REDIS_STREAM_MAXLEN", 10000)),
		},
		Alert: AlertConfig{
			SlackWebhookURL:       getEnv("ALERT_SLACK_WEBHOOK_URL", ""),
			WebhookURL:            getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:              getEnvDuration("ALERT_COOLDOWN", 30*time.Minute),
			ApplyFailureThreshold: getEnvInt("ALERT_APPLY_FAILURE_THRESHOLD", 3),
		},
		Tracing: TracingConfig{
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio: getEnvFloat("OTEL_TRACES_SAMPLER_RATIO", 1.0),
		},
		Server: ServerConfig{
			HealthPort: getEnvInt("HEALTH_PORT", 8081),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	statuses, err := getEnvIntList("RETRY_STATUSES", []int{502, 503})
	if err != nil {
		return nil, fmt.Errorf("RETRY_STATUSES: %w", err)
	}
	cfg.Retry.Statuses = statuses

	if cfg.Control.PolicyFile != "" {
		raw, err := os.ReadFile(cfg.Control.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		if err := cfg.applyPolicyFile(raw); err != nil {
			return nil, fmt.Errorf("policy file %s: %w", cfg.Control.PolicyFile, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// policyFile is the YAML layout of CONTROL_POLICY_FILE. Only the keys present
// in the file override the environment values.
type policyFile struct {
	Timeout     control.HysteresisPolicy `yaml:"timeout"`
	Retry       control.HysteresisPolicy `yaml:"retry"`
	Concurrency control.KneePolicy       `yaml:"concurrency"`
}

func (c *Config) applyPolicyFile(raw []byte) error {
	pf := policyFile{
		Timeout:     c.Timeout.Policy,
		Retry:       c.Retry.Policy,
		Concurrency: c.Concurrency.Policy,
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode: %w", err)
	}
	c.Timeout.Policy = pf.Timeout
	c.Retry.Policy = pf.Retry
	c.Concurrency.Policy = pf.Concurrency
	return nil
}

// Guards returns the concurrency guard queries, or nil when guards are off.
func (c ConcurrencyConfig) Guards() []control.GuardQuery {
	if !c.GuardsEnabled {
		return nil
	}
	var out []control.GuardQuery
	if c.GuardTimeoutQuery != "" {
		out = append(out, control.GuardQuery{Name: "timeout_504_pct", Query: c.GuardTimeoutQuery})
	}
	if c.GuardLatencyQuery != "" {
		out = append(out, control.GuardQuery{Name: "p99_2xx_seconds", Query: c.GuardLatencyQuery})
	}
	return out
}

func (c *Config) validate() error {
	if c.Prometheus.URL == "" {
		return fmt.Errorf("PROMETHEUS_URL is required")
	}
	if c.Gateway.URL == "" {
		return fmt.Errorf("GATEWAY_URL is required")
	}
	if c.Control.TickInterval <= 0 {
		return fmt.Errorf("CONTROL_TICK_INTERVAL must be positive")
	}
	if c.Prometheus.Timeout <= 0 || c.Prometheus.Timeout >= c.Control.TickInterval {
		return fmt.Errorf("PROMETHEUS_TIMEOUT must be positive and shorter than CONTROL_TICK_INTERVAL")
	}
	if c.Gateway.Timeout <= 0 || c.Gateway.Timeout >= c.Control.TickInterval {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive and shorter than CONTROL_TICK_INTERVAL")
	}
	if c.Control.InitAttempts < 1 {
		return fmt.Errorf("CONTROL_INIT_ATTEMPTS must be at least 1")
	}
	if strings.TrimSpace(c.Control.ResourceLabel) == "" {
		return fmt.Errorf("CONTROL_RESOURCE_LABEL is required")
	}
	if !c.Timeout.Enabled && !c.Retry.Enabled && !c.Concurrency.Enabled {
		return fmt.Errorf("at least one of TIMEOUT_ENABLED, RETRY_ENABLED, CONCURRENCY_ENABLED must be true")
	}
	if c.Timeout.Enabled {
		if c.Timeout.Query == "" {
			return fmt.Errorf("TIMEOUT_QUERY is required")
		}
		if err := c.Timeout.Policy.Validate(); err != nil {
			return fmt.Errorf("timeout policy: %w", err)
		}
	}
	if c.Retry.Enabled {
		if c.Retry.Query == "" {
			return fmt.Errorf("RETRY_QUERY is required")
		}
		if err := c.Retry.Policy.Validate(); err != nil {
			return fmt.Errorf("retry policy: %w", err)
		}
		if c.Retry.FirstBackoff <= 0 || c.Retry.MaxBackoff < c.Retry.FirstBackoff {
			return fmt.Errorf("RETRY_FIRST_BACKOFF must be positive and not above RETRY_MAX_BACKOFF")
		}
		if c.Retry.Factor < 1 {
			return fmt.Errorf("RETRY_BACKOFF_FACTOR must be at least 1")
		}
	}
	if c.Concurrency.Enabled {
		if c.Concurrency.Query == "" {
			return fmt.Errorf("CONCURRENCY_QUERY is required")
		}
		if err := c.Concurrency.Policy.Validate(); err != nil {
			return fmt.Errorf("concurrency policy: %w", err)
		}
		if c.Concurrency.MaxWaitMs < 0 {
			return fmt.Errorf("CONCURRENCY_MAX_WAIT_MS must not be negative")
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLER_RATIO must be within [0, 1]")
	}
	if c.Server.HealthPort < 1 || c.Server.HealthPort > 65535 {
		return fmt.Errorf("HEALTH_PORT %d out of range", c.Server.HealthPort)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts a Go duration ("90s") or plain milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvIntList(key string, fallback []int) ([]int, error) {
	items := getEnvList(key, nil)
	if len(items) == 0 {
		return fallback, nil
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", item)
		}
		out = append(out, n)
	}
	return out, nil
}
