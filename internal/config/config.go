// Package config loads the daemon configuration from an optional yaml file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/jumpboard/internal/session"
)

type Config struct {
	Name       string   `yaml:"name"`
	Realm      string   `yaml:"realm"`
	ClassTag   string   `yaml:"class_tag"`
	Group      string   `yaml:"group"`
	NATSURL    string   `yaml:"nats_url"`
	ListenAddr string   `yaml:"listen_addr"`
	Protocol   Protocol `yaml:"protocol"`
}

// Protocol holds the timing knobs. Zero values fall back to the session
// defaults.
type Protocol struct {
	TickMS              int `yaml:"tick_ms"`
	StateThrottleMS     int `yaml:"state_throttle_ms"`
	HelloRateLimitMS    int `yaml:"hello_rate_limit_ms"`
	HeartbeatMS         int `yaml:"heartbeat_ms"`
	ConvergenceWindowMS int `yaml:"convergence_window_ms"`
	PostBaseDelayMS     int `yaml:"post_base_delay_ms"`
	StaggerRangeMS      int `yaml:"stagger_range_ms"`
	DisplayGraceSec     int `yaml:"display_grace_sec"`
	JumpDebounceMS      int `yaml:"jump_debounce_ms"`
	TopK                int `yaml:"top_k"`
	MaxLineLen          int `yaml:"max_line_len"`
}

// Load reads the yaml file at path (missing file is fine, env-only setups
// are supported) and applies environment overrides. Name and Realm are
// required after both sources are merged.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Group:      "default",
		NATSURL:    "nats://127.0.0.1:4222",
		ListenAddr: "127.0.0.1:8077",
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if cfg.Name == "" || cfg.Realm == "" {
		return nil, fmt.Errorf("player name and realm are required (set name/realm in %s or JB_NAME/JB_REALM)", path)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Name = getEnv("JB_NAME", c.Name)
	c.Realm = getEnv("JB_REALM", c.Realm)
	c.ClassTag = getEnv("JB_CLASS", c.ClassTag)
	c.Group = getEnv("JB_GROUP", c.Group)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.ListenAddr = getEnv("JB_LISTEN", c.ListenAddr)
	c.Protocol.TopK = getEnvAsInt("JB_TOP_K", c.Protocol.TopK)
}

// Identity returns the canonical "Name-Realm" identity of the local player.
func (c *Config) Identity() string {
	return c.Name + "-" + c.Realm
}

// Session maps the configuration onto the protocol session config.
func (c *Config) Session() session.Config {
	p := c.Protocol
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return session.Config{
		Identity:          c.Identity(),
		Realm:             c.Realm,
		ClassTag:          c.ClassTag,
		Tick:              ms(p.TickMS),
		StateThrottle:     ms(p.StateThrottleMS),
		HelloRateLimit:    ms(p.HelloRateLimitMS),
		Heartbeat:         ms(p.HeartbeatMS),
		ConvergenceWindow: ms(p.ConvergenceWindowMS),
		PostBaseDelay:     ms(p.PostBaseDelayMS),
		StaggerRange:      ms(p.StaggerRangeMS),
		DisplayGrace:      time.Duration(p.DisplayGraceSec) * time.Second,
		JumpDebounce:      ms(p.JumpDebounceMS),
		TopK:              p.TopK,
		MaxLineLen:        p.MaxLineLen,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
