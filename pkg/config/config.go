// SPDX-License-Identifier: Apache-2.0

// Package config loads Rendez configuration from an optional YAML file and
// RENDEZ_-prefixed environment variables, with sane defaults for local use.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Agent     AgentConfig     `koanf:"agent"`
	Store     StoreConfig     `koanf:"store"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`

	// Cloud selects the OpenAI-compatible chat endpoint instead of the
	// local Ollama generate endpoint.
	Cloud bool `koanf:"cloud"`

	// Per-phase oracle budgets, in seconds. Each ORPLAR phase gets its own
	// allowance so one slow phase cannot exhaust another's.
	IntentTimeoutSeconds   int `koanf:"intent_timeout_seconds"`
	PlanTimeoutSeconds     int `koanf:"plan_timeout_seconds"`
	ResponseTimeoutSeconds int `koanf:"response_timeout_seconds"`
}

type AgentConfig struct {
	// WindowMinutes bounds the rolling conversation window.
	WindowMinutes int `koanf:"window_minutes"`

	// MaxConcurrentTools caps simultaneous in-flight tool executions.
	MaxConcurrentTools int `koanf:"max_concurrent_tools"`

	// PlanTTLMinutes bounds how long a proposed plan stays confirmable.
	PlanTTLMinutes int `koanf:"plan_ttl_minutes"`

	// SweepIntervalSeconds controls the plan-cache sweeper; 0 disables it.
	SweepIntervalSeconds int `koanf:"sweep_interval_seconds"`
}

type StoreConfig struct {
	// Path is the SQLite database file; ":memory:" keeps everything
	// in-process.
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// IntentTimeout returns the intent-phase oracle budget.
func (c LLMConfig) IntentTimeout() time.Duration {
	return time.Duration(c.IntentTimeoutSeconds) * time.Second
}

// PlanTimeout returns the planning-phase oracle budget.
func (c LLMConfig) PlanTimeout() time.Duration {
	return time.Duration(c.PlanTimeoutSeconds) * time.Second
}

// ResponseTimeout returns the response-composition oracle budget.
func (c LLMConfig) ResponseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeoutSeconds) * time.Second
}

// Window returns the rolling conversation window duration.
func (c AgentConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// PlanTTL returns the proposed-plan time to live.
func (c AgentConfig) PlanTTL() time.Duration {
	return time.Duration(c.PlanTTLMinutes) * time.Minute
}

// SweepInterval returns the plan-cache sweep cadence.
func (c AgentConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// Load reads configuration, layering file values over defaults and
// environment values over both (RENDEZ_LLM_BASE_URL -> llm.base_url).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.model", "llama3.1:8b-instruct-q5_K_M")
	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("llm.cloud", false)
	k.Set("llm.intent_timeout_seconds", 30)
	k.Set("llm.plan_timeout_seconds", 30)
	k.Set("llm.response_timeout_seconds", 20)

	k.Set("agent.window_minutes", 60)
	k.Set("agent.max_concurrent_tools", 5)
	k.Set("agent.plan_ttl_minutes", 15)
	k.Set("agent.sweep_interval_seconds", 60)

	k.Set("store.path", "rendez.db")

	k.Set("telemetry.exporter", "stdout")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (RENDEZ_LLM_BASE_URL -> llm.base_url). Sections are
	// single words, so only the first underscore separates section from key;
	// the rest belong to the key itself.
	if err := k.Load(env.Provider("RENDEZ_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "RENDEZ_"))
		return strings.Replace(key, "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
