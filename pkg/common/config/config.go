package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// PlannerConfig holds configuration for planner nodes
type PlannerConfig struct {
	NodeID             string
	BindAddr           string
	RESTPort           int
	LogLevel           string
	MetricsPort        int
	OptimizerMaxPasses int
	RequestTimeout     time.Duration
}

// LoadPlannerConfig loads planner node configuration from file
func LoadPlannerConfig(cfgFile string) (*PlannerConfig, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("node_id", getHostname())
	v.SetDefault("bind_addr", "0.0.0.0")
	v.SetDefault("rest_port", 9210)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_port", 9410)
	v.SetDefault("optimizer_max_passes", 25)
	v.SetDefault("request_timeout", "30s")

	// Load config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("planner")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/loomdb/")
		v.AddConfigPath("$HOME/.loomdb/")
		v.AddConfigPath(".")
	}

	// Read environment variables
	v.SetEnvPrefix("LOOMDB")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &PlannerConfig{
		NodeID:             v.GetString("node_id"),
		BindAddr:           v.GetString("bind_addr"),
		RESTPort:           v.GetInt("rest_port"),
		LogLevel:           v.GetString("log_level"),
		MetricsPort:        v.GetInt("metrics_port"),
		OptimizerMaxPasses: v.GetInt("optimizer_max_passes"),
		RequestTimeout:     v.GetDuration("request_timeout"),
	}

	if cfg.OptimizerMaxPasses <= 0 {
		return nil, fmt.Errorf("optimizer_max_passes must be positive, got %d", cfg.OptimizerMaxPasses)
	}

	return cfg, nil
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
