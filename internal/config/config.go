// Package config defines service configuration structures and loading hooks.
package config

import (
	"runtime"
)

// Accepted values for Scorer and StoreDriver.
const (
	ScorerHeuristic = "heuristic"
	ScorerLLM       = "llm"
	StoreMemory     = "memory"
	StoreSQLite     = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory submission queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of scoring workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets how many submission ids are remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
	// MaxEssayChars caps accepted essay text, in characters.
	MaxEssayChars int `koanf:"max_essay_chars"`

	// Scorer selects heuristic or llm (remote model with heuristic fallback).
	Scorer string `koanf:"scorer"`

	// Remote model settings, used when Scorer is llm.
	LLMAPIKey      string  `koanf:"llm_api_key"`
	LLMBaseURL     string  `koanf:"llm_base_url"`
	LLMModel       string  `koanf:"llm_model"`
	LLMMaxTokens   int     `koanf:"llm_max_tokens"`
	LLMTemperature float32 `koanf:"llm_temperature"`
	LLMTimeoutMS   int     `koanf:"llm_timeout_ms"`
	LLMRatePerSec  float64 `koanf:"llm_rate_per_sec"`
	// LLMPromptPath overrides the embedded prompt template.
	LLMPromptPath string `koanf:"llm_prompt_path"`
	// LLMGenerationPath overrides the embedded question and model answer prompts.
	LLMGenerationPath string `koanf:"llm_generation_path"`

	// StoreDriver selects memory or sqlite for scored submissions.
	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`

	// CatalogPath overrides the embedded university catalog.
	CatalogPath string `koanf:"catalog_path"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		QueueSize:           10_000,
		WorkerCount:         runtime.NumCPU() * 2,
		DedupeSize:          100_000,
		MaxLeaderboardLimit: 100,
		MaxEssayChars:       4_000,
		Scorer:              ScorerHeuristic,
		LLMModel:            "gpt-4o-mini",
		LLMMaxTokens:        2_500,
		LLMTemperature:      0.2,
		LLMTimeoutMS:        30_000,
		LLMRatePerSec:       2,
		StoreDriver:         StoreMemory,
		SQLitePath:          "ronbun.db",
	}
}
