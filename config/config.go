// Package config loads the engine configuration from a yaml or json file
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"dispatchflow/notify"
)

type Config struct {
	Database DatabaseConfig    `json:"database"`
	HTTP     HTTPConfig        `json:"http"`
	Auth     AuthConfig        `json:"auth"`
	Quote    QuoteConfig       `json:"quote"`
	Field    FieldConfig       `json:"field"`
	MQTT     notify.MQTTConfig `json:"mqtt"`
}

type DatabaseConfig struct {
	URL string `json:"url"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

type QuoteConfig struct {
	ExpiresMinutes int `json:"expires_minutes"`
}

type FieldConfig struct {
	TokenSalt             string `json:"token_salt"`
	SessionExpiresMinutes int    `json:"session_expires_minutes"`
	LinkBase              string `json:"link_base"`
}

func (c *Config) setDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Quote.ExpiresMinutes == 0 {
		c.Quote.ExpiresMinutes = 120
	}
	if c.Field.SessionExpiresMinutes == 0 {
		c.Field.SessionExpiresMinutes = 240
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret is required")
	}
	if c.Field.TokenSalt == "" {
		return fmt.Errorf("config: field.token_salt is required")
	}
	return nil
}

// Load reads the config file at path. Environment variables prefixed with
// DF_ override file values, with __ as the nesting separator
// (e.g. DF_DATABASE__URL).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("DF_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "df_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
