package main

import (
	"time"

	"github.com/BurntSushi/toml"
)

// config is archivefsctl's optional TOML configuration file, loaded with
// --config. Every field has a workable zero-value default so the tool
// runs fine with no config file at all.
type config struct {
	LogLevel string `toml:"log_level"`

	InfoCacheEntries int           `toml:"info_cache_entries"`
	InfoCacheTTL     time.Duration `toml:"info_cache_ttl"`
	EnumCacheEntries int           `toml:"enum_cache_entries"`
	EnumCacheTTL     time.Duration `toml:"enum_cache_ttl"`

	MetricsAddr string `toml:"metrics_addr"`
}

func defaultConfig() config {
	return config{
		LogLevel:         "info",
		InfoCacheEntries: 4096,
		InfoCacheTTL:     2 * time.Minute,
		EnumCacheEntries: 1024,
		EnumCacheTTL:     time.Minute,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}
