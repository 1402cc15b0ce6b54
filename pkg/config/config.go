// Package config provides a reusable loader for the indexer's configuration
// files and environment variables: a YAML default merged with an optional
// environment-specific override, then environment variables on top.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"chainweb-indexer/pkg/utils"
)

// Config is the unified configuration for the indexer process.
type Config struct {
	Node struct {
		BaseURL        string        `mapstructure:"base_url" json:"base_url"`
		Timeout        time.Duration `mapstructure:"timeout" json:"timeout"`
		ChainCount     int           `mapstructure:"chain_count" json:"chain_count"`
		NetworkVersion string        `mapstructure:"network_version" json:"network_version"`
	} `mapstructure:"node" json:"node"`

	Concurrency struct {
		Chains int `mapstructure:"chains" json:"chains"`
		Polls  int `mapstructure:"polls" json:"polls"`
	} `mapstructure:"concurrency" json:"concurrency"`

	Storage struct {
		// DSN is carried for a future relational-store driver; the shipped
		// store implementation is in-memory and ignores it.
		DSN string `mapstructure:"dsn" json:"dsn"`
	} `mapstructure:"storage" json:"storage"`

	HTTP struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"http" json:"http"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Default returns a Config populated with the indexer's fixed concurrency
// policy (spec §5) and conservative defaults, used when no config file is
// found on disk.
func Default() Config {
	var c Config
	c.Node.BaseURL = "https://api.chainweb.com"
	c.Node.Timeout = 30 * time.Second
	c.Node.ChainCount = 20
	c.Node.NetworkVersion = "mainnet01"
	c.Concurrency.Chains = 4
	c.Concurrency.Polls = 10
	c.HTTP.ListenAddr = ":9191"
	c.Logging.Level = "info"
	return c
}

// Load reads configuration files and merges any environment-specific
// overrides, then applies environment variables on top. The result is
// stored in AppConfig and returned. If no config file is found on any
// search path, Load falls back to Default() rather than failing, since the
// indexer's concurrency policy is fixed and every other field has a
// sensible default.
func Load(env string) (*Config, error) {
	AppConfig = Default()

	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	} else if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("CHAINWEB_INDEXER")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the CHAINWEB_INDEXER_ENV
// environment variable to pick an override file.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("CHAINWEB_INDEXER_ENV", ""))
}
