// Package config loads cipherswarmd's runtime configuration via viper,
// filling in the named constants the scheduling components rely on.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Named constants from the scheduling design: the minimum agent benchmark
// to be eligible for assignment, the preemption retry cap, and the progress
// ceiling above which a task is no longer preemptable. Timing parameters
// for health checks and heartbeat loss detection are Config fields.
const (
	MinPerformanceBenchmark = 1000
	MaxPreemptionCount      = 2
	PreemptionProgressCeil  = 0.90
)

// Config is the resolved runtime configuration.
type Config struct {
	DataDir string

	LogLevel      string
	LogJSON       bool

	MetricsAddr string
	HealthAddr  string

	HealthLockTTL    time.Duration
	HealthProbeTimeout time.Duration

	HeartbeatGrace time.Duration

	EtaCacheTTL time.Duration
}

// Load reads configuration from (in order of increasing precedence)
// defaults, an optional config file, and environment variables prefixed
// CIPHERSWARMD_.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("health_addr", ":9091")
	v.SetDefault("health_lock_ttl", 10*time.Second)
	v.SetDefault("health_probe_timeout", 5*time.Second)
	v.SetDefault("heartbeat_grace", 30*time.Second)
	v.SetDefault("eta_cache_ttl", 60*time.Second)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix("cipherswarmd")
	v.AutomaticEnv()

	return &Config{
		DataDir:            v.GetString("data_dir"),
		LogLevel:           v.GetString("log_level"),
		LogJSON:            v.GetBool("log_json"),
		MetricsAddr:        v.GetString("metrics_addr"),
		HealthAddr:         v.GetString("health_addr"),
		HealthLockTTL:      v.GetDuration("health_lock_ttl"),
		HealthProbeTimeout: v.GetDuration("health_probe_timeout"),
		HeartbeatGrace:     v.GetDuration("heartbeat_grace"),
		EtaCacheTTL:        v.GetDuration("eta_cache_ttl"),
	}, nil
}
