// Package config loads operator-facing engine tuning from TOML.
// Scorer weights, risk half-life, and the zero-slack tolerance live
// here so operators retune scheduling behavior without code changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Scoring  ScoringConfig  `toml:"scoring"`
	Schedule ScheduleConfig `toml:"schedule"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

type ScoringConfig struct {
	UrgencyWeight     float64 `toml:"urgency_weight"`
	FanOutWeight      float64 `toml:"fan_out_weight"`
	RiskWeight        float64 `toml:"risk_weight"`
	CriticalBonus     float64 `toml:"critical_bonus"`
	RiskHalfLifeHours float64 `toml:"risk_half_life_hours"`
	NeutralRisk       float64 `toml:"neutral_risk"`
}

type ScheduleConfig struct {
	// SlackToleranceSeconds is how close to zero slack must be for a
	// node to count as critical.
	SlackToleranceSeconds float64 `toml:"slack_tolerance_seconds"`
}

type NotifyConfig struct {
	ScoreThreshold     float64 `toml:"score_threshold"`
	SlackThresholdSecs float64 `toml:"slack_threshold_seconds"`
	SubscriberBuffer   int     `toml:"subscriber_buffer"`
}

type ServerConfig struct {
	Bind        string `toml:"bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type LogConfig struct {
	Level string `toml:"level"` // debug | info | warn | error
}

func Default() Config {
	return Config{
		Scoring: ScoringConfig{
			UrgencyWeight:     1.0,
			FanOutWeight:      0.5,
			RiskWeight:        0.75,
			CriticalBonus:     1.0,
			RiskHalfLifeHours: 48,
			NeutralRisk:       0.5,
		},
		Schedule: ScheduleConfig{
			SlackToleranceSeconds: 1,
		},
		Notify: NotifyConfig{
			ScoreThreshold:     1e-6,
			SlackThresholdSecs: 1,
			SubscriberBuffer:   64,
		},
		Server: ServerConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Scoring.UrgencyWeight < 0 || c.Scoring.FanOutWeight < 0 || c.Scoring.RiskWeight < 0 {
		return errors.New("scoring weights must be non-negative")
	}
	if c.Scoring.CriticalBonus < 0 {
		return errors.New("scoring.critical_bonus must be non-negative")
	}
	if c.Scoring.RiskHalfLifeHours < 0 {
		return errors.New("scoring.risk_half_life_hours must be non-negative")
	}
	if c.Scoring.NeutralRisk < 0 || c.Scoring.NeutralRisk > 1 {
		return errors.New("scoring.neutral_risk must be in [0,1]")
	}
	if c.Schedule.SlackToleranceSeconds < 0 {
		return errors.New("schedule.slack_tolerance_seconds must be non-negative")
	}
	if c.Notify.ScoreThreshold < 0 {
		return errors.New("notify.score_threshold must be non-negative")
	}
	if c.Notify.SlackThresholdSecs < 0 {
		return errors.New("notify.slack_threshold_seconds must be non-negative")
	}
	if c.Notify.SubscriberBuffer < 0 {
		return errors.New("notify.subscriber_buffer must be non-negative")
	}
	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server.bind is required")
	}
	switch strings.TrimSpace(strings.ToLower(c.Log.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	return nil
}

// RiskHalfLife returns the half-life as a duration.
func (c Config) RiskHalfLife() time.Duration {
	return time.Duration(c.Scoring.RiskHalfLifeHours * float64(time.Hour))
}

// SlackTolerance returns the zero-slack tolerance as a duration.
func (c Config) SlackTolerance() time.Duration {
	return time.Duration(c.Schedule.SlackToleranceSeconds * float64(time.Second))
}

// SlackThreshold returns the notifier's slack threshold as a duration.
func (c Config) SlackThreshold() time.Duration {
	return time.Duration(c.Notify.SlackThresholdSecs * float64(time.Second))
}
