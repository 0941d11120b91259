// Package config loads orchestrator configuration with viper in layers:
// defaults, then a YAML file, then environment variables, validated
// against a fixed key allow-list before being unmarshalled.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full set of tunables the orchestrator, queue, registry,
// broker and monitor read at startup.
type Config struct {
	MaxAgents            int     `mapstructure:"max_agents"`
	QueueMaxLen          int     `mapstructure:"queue_max_len"`
	DefaultTaskTimeoutMs int64   `mapstructure:"default_task_timeout_ms"`
	RetryMaxRetries      int     `mapstructure:"retry_max_retries"`
	RetryBackoffMs       int64   `mapstructure:"retry_backoff_ms"`
	RetryBackoffMult     float64 `mapstructure:"retry_backoff_multiplier"`
	AgentStaleAfterMs    int64   `mapstructure:"agent_stale_after_ms"`
	DrainDeadlineMs      int64   `mapstructure:"drain_deadline_ms"`

	// ErrorBurstThreshold/Window tune the gobreaker-backed degraded mode:
	// the breaker trips after this many internal errors within the window.
	ErrorBurstThreshold int   `mapstructure:"error_burst_threshold"`
	ErrorBurstWindowMs  int64 `mapstructure:"error_burst_window_ms"`

	// SweepCron expressions, each consumed by internal/sweep. Empty means
	// that sweep is disabled.
	SweepDispatchCron string `mapstructure:"sweep_dispatch_cron"`
	SweepHealthCron   string `mapstructure:"sweep_health_cron"`
	SweepCleanupCron  string `mapstructure:"sweep_cleanup_cron"`

	RedisAddr     string `mapstructure:"redis_addr"`
	TemporalHost  string `mapstructure:"temporal_host"`
	TemporalQueue string `mapstructure:"temporal_task_queue"`

	HTTPAddr string `mapstructure:"http_addr"`
}

// allowedKeys is the fixed set of configuration keys this service
// recognises; Load rejects anything else rather than silently ignoring a
// typo.
var allowedKeys = []string{
	"max_agents", "queue_max_len", "default_task_timeout_ms",
	"retry_max_retries", "retry_backoff_ms", "retry_backoff_multiplier",
	"agent_stale_after_ms", "drain_deadline_ms", "error_burst_threshold", "error_burst_window_ms",
	"sweep_dispatch_cron", "sweep_health_cron", "sweep_cleanup_cron",
	"redis_addr", "temporal_host", "temporal_task_queue", "http_addr",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_agents", 20)
	v.SetDefault("queue_max_len", 10000)
	v.SetDefault("default_task_timeout_ms", 30000)
	v.SetDefault("retry_max_retries", 3)
	v.SetDefault("retry_backoff_ms", 1000)
	v.SetDefault("retry_backoff_multiplier", 2.0)
	v.SetDefault("agent_stale_after_ms", 90000)
	v.SetDefault("drain_deadline_ms", 10000)
	v.SetDefault("error_burst_threshold", 10)
	v.SetDefault("error_burst_window_ms", 60000)
	v.SetDefault("sweep_dispatch_cron", "@every 1s")
	v.SetDefault("sweep_health_cron", "@every 15s")
	v.SetDefault("sweep_cleanup_cron", "@every 5m")
	v.SetDefault("redis_addr", "")
	v.SetDefault("temporal_host", "")
	v.SetDefault("temporal_task_queue", "agentmesh-events")
	v.SetDefault("http_addr", ":8080")
}

// Load reads configuration for serviceName: defaults, an optional
// {serviceName}.yaml under configPath, and environment variables prefixed
// with the upper-cased serviceName (e.g. AGENTMESH_MAX_AGENTS).
func Load(serviceName, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(strings.ToUpper(serviceName))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := validateKeys(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func validateKeys(v *viper.Viper) error {
	allowed := make(map[string]bool, len(allowedKeys))
	for _, k := range allowedKeys {
		allowed[k] = true
	}
	for _, k := range v.AllKeys() {
		if !allowed[k] {
			return fmt.Errorf("unknown configuration key %q", k)
		}
	}
	return nil
}
