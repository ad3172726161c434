package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Values come from an optional YAML
// file (CONFIG_FILE) with environment variables taking precedence.
type Config struct {
	Addr        string `yaml:"addr"`
	RedisURL    string `yaml:"redis_url"`
	NATSURL     string `yaml:"nats_url"`
	DatabaseURL string `yaml:"database_url"`
	CatalogFile string `yaml:"catalog_file"`
	LogLevel    string `yaml:"log_level"`
}

func loadConfig() (Config, error) {
	cfg := Config{
		Addr:     ":8080",
		RedisURL: "redis://localhost:6379",
		NATSURL:  "nats://localhost:4222",
		LogLevel: "info",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Addr = getEnv("ADDR", cfg.Addr)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.CatalogFile = getEnv("CATALOG_FILE", cfg.CatalogFile)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
