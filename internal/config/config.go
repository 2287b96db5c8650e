// Package config loads the composer configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/japaniel/composer/pkg/dictionary"
	"github.com/japaniel/composer/pkg/grammar"
	"github.com/japaniel/composer/pkg/poet"
	"github.com/japaniel/composer/pkg/userdict"
)

// Config is the whole application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Grammar    GrammarConfig    `yaml:"grammar"`
	Redis      RedisConfig      `yaml:"redis"`
	Server     ServerConfig     `yaml:"server"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Poet       PoetConfig       `yaml:"poet"`
	Log        LogConfig        `yaml:"log"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type DictionaryConfig struct {
	Path           string  `yaml:"path"`
	AutoDownload   bool    `yaml:"auto_download"`
	MaxWordLength  int     `yaml:"max_word_length"`
	KanaFallback   bool    `yaml:"kana_fallback"`
	FallbackWeight float64 `yaml:"fallback_weight"`
}

type GrammarConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Penalty    float64 `yaml:"penalty"`
	MaxContext int     `yaml:"max_context"`
}

// RedisConfig locates the user dictionary. It is optional.
type RedisConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	Key             string        `yaml:"key"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxInputLen  int           `yaml:"max_input_length"`
}

type IngestConfig struct {
	Workers   int `yaml:"workers"`
	BatchSize int `yaml:"batch_size"`
}

type PoetConfig struct {
	// MaxEdges bounds the edges one sweep may examine; 0 is unbounded.
	MaxEdges int `yaml:"max_edges"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "composer.db"},
		Dictionary: DictionaryConfig{
			Path:           "jmdict-eng-common.json",
			AutoDownload:   true,
			MaxWordLength:  dictionary.DefaultMaxWordLength,
			KanaFallback:   true,
			FallbackWeight: dictionary.FallbackWeight,
		},
		Grammar: GrammarConfig{
			Enabled:    true,
			Penalty:    poet.DefaultPenalty,
			MaxContext: grammar.DefaultMaxContext,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			Key:             userdict.DefaultKey,
			BreakerFailures: 3,
			BreakerTimeout:  30 * time.Second,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			MaxInputLen:  256,
		},
		Ingest: IngestConfig{Workers: 4, BatchSize: 50},
		Poet:   PoetConfig{MaxEdges: 200000},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path uses the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COMPOSER_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("COMPOSER_DICT"); v != "" {
		cfg.Dictionary.Path = v
	}
	if v := os.Getenv("COMPOSER_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("COMPOSER_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("COMPOSER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("COMPOSER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("COMPOSER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.Workers = n
		}
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path must be set"))
	}
	if c.Dictionary.Path == "" {
		errs = append(errs, errors.New("dictionary.path must be set"))
	}
	if c.Dictionary.MaxWordLength <= 0 {
		errs = append(errs, fmt.Errorf("dictionary.max_word_length must be positive, got %d", c.Dictionary.MaxWordLength))
	}
	if c.Grammar.Penalty > 0 {
		errs = append(errs, fmt.Errorf("grammar.penalty is a log-probability and must not be positive, got %g", c.Grammar.Penalty))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr must be set when redis is enabled"))
	}
	if c.Ingest.Workers <= 0 {
		errs = append(errs, fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers))
	}
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize))
	}
	if c.Poet.MaxEdges < 0 {
		errs = append(errs, fmt.Errorf("poet.max_edges must not be negative, got %d", c.Poet.MaxEdges))
	}
	if c.Server.MaxInputLen <= 0 {
		errs = append(errs, fmt.Errorf("server.max_input_length must be positive, got %d", c.Server.MaxInputLen))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
