// Package config loads the scmform CLI settings from an optional config file
// and SCMFORM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. SCMFORM_API_TOKEN.
const EnvPrefix = "SCMFORM"

// Config holds the CLI configuration.
type Config struct {
	API     APIConfig
	Session SessionConfig
	Form    FormConfig
	Output  OutputConfig
	Log     LogConfig
	Metrics MetricsConfig
	Demo    bool
}

// APIConfig describes the backend.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string
	Timeout string
}

// SessionConfig describes the acting user. AuthFile, when set, takes
// precedence over the individual fields.
type SessionConfig struct {
	AuthFile  string `mapstructure:"auth_file"`
	AccountID string `mapstructure:"account_id"`
	UserType  string `mapstructure:"user_type"`
	SchoolID  string `mapstructure:"school_id"`
}

// FormConfig selects the form and where its definition comes from.
type FormConfig struct {
	ID        string
	RecordID  string `mapstructure:"record_id"`
	SchemaDir string `mapstructure:"schema_dir"`
	Watch     bool
	Preset    string
	OpenAPI   string `mapstructure:"openapi"`
	Operation string
	Entity    string
}

// OutputConfig controls how the response is printed.
type OutputConfig struct {
	Format string
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string
	Pretty bool
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string
}

var defaults = map[string]any{
	"api.base_url":       "http://localhost:8080",
	"api.token":          "",
	"api.timeout":        "30s",
	"session.auth_file":  "",
	"session.account_id": "",
	"session.user_type":  "ADMIN",
	"session.school_id":  "",
	"form.id":            "student",
	"form.record_id":     "",
	"form.schema_dir":    "",
	"form.watch":         false,
	"form.preset":        "",
	"form.openapi":       "",
	"form.operation":     "",
	"form.entity":        "",
	"output.format":      "json",
	"log.level":          "warn",
	"log.pretty":         true,
	"metrics.addr":       "",
	"demo":               false,
}

// Load reads path (when non-empty, or $SCMFORM_CONFIG) and the environment,
// then applies overrides, typically the flags the user set explicitly.
func Load(path string, overrides map[string]any) (Config, error) {
	v := viper.New()

	// Unmarshal only sees environment overrides for keys viper knows about,
	// so every key gets a default.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the combination of settings.
func (c Config) Validate() error {
	switch strings.ToLower(c.Output.Format) {
	case "json", "pretty":
	default:
		return fmt.Errorf("config: output.format must be json or pretty, got %q", c.Output.Format)
	}
	if c.Form.OpenAPI != "" && strings.TrimSpace(c.Form.Operation) == "" {
		return errors.New("config: form.operation is required with form.openapi")
	}
	if !c.Demo && strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("config: api.base_url is required")
	}
	return nil
}
