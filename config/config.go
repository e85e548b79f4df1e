// Package config loads the account-lease server's configuration from an
// INI file, matching the two-section layout (general/database) the server
// has always shipped with.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// General holds the [general] section.
type General struct {
	ListenHost                       string
	ListenPort                       int
	AuthUsername                     string
	AuthPassword                     string
	CooldownSeconds                  int64
	RateLimitMinutes                 int
	RateLimitNumber                  int
	StrictRateLimitMinutes           int
	AllowRateLimitOverrideWhenBurned bool
	ForceReleaseSeconds              int64
}

// Database holds the [database] section.
type Database struct {
	Host string
	Port int
	User string
	Pass string
	Name string
}

// Config is the fully parsed, defaulted and validated configuration.
type Config struct {
	General  General
	Database Database
}

// StrictRateLimitSeconds returns the strict (burst) rate limit window.
func (g General) StrictRateLimitSeconds() int64 {
	return int64(g.StrictRateLimitMinutes) * 60
}

// RateLimitWindowSeconds returns the period rate limit window.
func (g General) RateLimitWindowSeconds() int64 {
	return int64(g.RateLimitMinutes) * 60
}

// Load reads the INI file at path, applying defaults for anything absent.
// A .env file in the working directory, if present, is loaded into the
// process environment first; the settings below are read from the INI
// file only and are never taken from environment variables.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	general := cfg.Section("general")
	database := cfg.Section("database")

	cooldownHours := general.Key("cooldown").MustInt(24)
	forceReleaseDays := general.Key("force_release_days").MustInt(30)

	c := &Config{
		General: General{
			ListenHost:                       general.Key("listen_host").MustString("127.0.0.1"),
			ListenPort:                       general.Key("listen_port").MustInt(9009),
			AuthUsername:                     general.Key("auth_username").String(),
			AuthPassword:                     general.Key("auth_password").String(),
			CooldownSeconds:                  int64(cooldownHours) * 60 * 60,
			RateLimitMinutes:                 general.Key("rate_limit_minutes").MustInt(60),
			RateLimitNumber:                  general.Key("rate_limit_number").MustInt(3),
			StrictRateLimitMinutes:           general.Key("strict_rate_limit_minutes").MustInt(5),
			AllowRateLimitOverrideWhenBurned: general.Key("allow_rate_limit_override_when_burned").MustBool(true),
			ForceReleaseSeconds:              int64(forceReleaseDays) * 60 * 60 * 24,
		},
		Database: Database{
			Host: database.Key("host").MustString("127.0.0.1"),
			Port: database.Key("port").MustInt(5432),
			User: database.Key("user").String(),
			Pass: database.Key("pass").String(),
			Name: database.Key("db").String(),
		},
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate fails fast if any setting the server cannot safely run without
// is absent, per spec section 6 / design notes.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.User == "" {
		missing = append(missing, "database.user")
	}
	if c.Database.Pass == "" {
		missing = append(missing, "database.pass")
	}
	if c.Database.Name == "" {
		missing = append(missing, "database.db")
	}
	if c.General.AuthUsername == "" {
		missing = append(missing, "general.auth_username")
	}
	if c.General.AuthPassword == "" {
		missing = append(missing, "general.auth_password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config value(s): %v", missing)
	}
	return nil
}

// CooldownCutoff returns the unix timestamp below which last_returned/
// last_burned no longer counts as "on cooldown".
func (c *Config) CooldownCutoff(now time.Time) int64 {
	return now.Unix() - c.General.CooldownSeconds
}
