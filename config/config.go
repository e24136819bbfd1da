// Package config loads the daemon configuration from a config.yaml found in
// ./config or the working directory.
package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Backend struct {
		// Kind selects the adapter: "memory", "redis" or "mysql".
		Kind string `mapstructure:"kind"`
	} `mapstructure:"backend"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Kafka struct {
		Enabled bool     `mapstructure:"enabled"`
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
		Group   string   `mapstructure:"group"`
	} `mapstructure:"kafka"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.SetDefault("running.port", 8080)
	v.SetDefault("backend.kind", "memory")
	v.SetDefault("kafka.group", "openot")
	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine; defaults plus env cover the memory backend.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
