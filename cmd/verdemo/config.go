package main

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type ReplicaConfig struct {
	Name string `mapstructure:"name"`
	// Src 0 picks a random replica id
	Src uint64 `mapstructure:"src"`
}

type Config struct {
	LogLevel    string          `mapstructure:"log_level"`
	DataDir     string          `mapstructure:"data_dir"`
	InMemory    bool            `mapstructure:"in_memory"`
	Field       string          `mapstructure:"field"`
	SettleDelay time.Duration   `mapstructure:"settle_delay"`
	HistoryFile string          `mapstructure:"history_file"`
	Replicas    []ReplicaConfig `mapstructure:"replicas"`
}

func defaultReplicas() []ReplicaConfig {
	return []ReplicaConfig{{Name: "alice"}, {Name: "bob"}, {Name: "max"}}
}

// initConfig reads verdemo.yaml from ./config or the working directory;
// VERDEMO_* environment variables override it. A missing file is fine.
func initConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("log_level", "warn")
	v.SetDefault("data_dir", "verdemo-data")
	v.SetDefault("in_memory", true)
	v.SetDefault("field", "text")
	v.SetDefault("settle_delay", 500*time.Millisecond)
	v.SetDefault("history_file", ".verdemo_history")
	v.SetEnvPrefix("VERDEMO")
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("verdemo")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if len(cfg.Replicas) == 0 {
		cfg.Replicas = defaultReplicas()
	}
	for i := range cfg.Replicas {
		for cfg.Replicas[i].Src == 0 {
			cfg.Replicas[i].Src = uint64(uuid.New().ID())
		}
	}
	return cfg, nil
}
