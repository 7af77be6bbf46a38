// Package config loads the hoot configuration.
//
// Values come from a YAML file (hoot.yaml by default), overridden by
// HOOT_-prefixed environment variables (HOOT_OPENAI_API_KEY sets
// openai.api_key). String values may reference other environment variables
// as ${VAR}. A .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/casualjim/hoot/provider/anthropic"
	"github.com/casualjim/hoot/provider/bedrock"
	"github.com/casualjim/hoot/provider/fireworks"
	"github.com/casualjim/hoot/provider/google"
	"github.com/casualjim/hoot/provider/openai"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "HOOT"
	// DefaultFile is looked up in the working directory when no file is given.
	DefaultFile = "hoot.yaml"
)

// Config is the complete configuration. A vendor section without credentials
// leaves that vendor out of the registry.
type Config struct {
	OpenAI    openai.Config    `mapstructure:"openai"`
	Fireworks fireworks.Config `mapstructure:"fireworks"`
	Anthropic anthropic.Config `mapstructure:"anthropic"`
	Google    google.Config    `mapstructure:"google"`
	Bedrock   bedrock.Config   `mapstructure:"bedrock"`

	// Aliases maps short model names to vendor model identifiers.
	Aliases map[string]string `mapstructure:"aliases"`

	HTTP HTTP `mapstructure:"http"`
	NATS NATS `mapstructure:"nats"`
	Log  Log  `mapstructure:"log"`
}

// HTTP tunes the vendor transport and the retry policy.
type HTTP struct {
	DialTimeout           time.Duration `mapstructure:"dial_timeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout"`
	StreamIdleTimeout     time.Duration `mapstructure:"stream_idle_timeout"`
	MaxAttempts           int           `mapstructure:"max_attempts"`
	Backoff               time.Duration `mapstructure:"backoff"`
	// SharedConfig marks the credentials as shared by every tenant.
	SharedConfig bool `mapstructure:"shared_config"`
}

// NATS configures run record publishing. An empty URL disables it.
type NATS struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// Log configures the CLI logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultRunSubject is the NATS subject run records go to.
const DefaultRunSubject = "hoot.runs"

func setDefaults(v *viper.Viper) {
	v.SetDefault("google.locations", []string{google.DefaultLocation})
	v.SetDefault("bedrock.regions", []string{bedrock.DefaultRegion})
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("nats.subject", DefaultRunSubject)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// keys lists every leaf key so AutomaticEnv can see keys missing from the file.
var keys = []string{
	"openai.api_key", "openai.organization", "openai.base_url",
	"fireworks.api_key", "fireworks.base_url",
	"anthropic.api_key", "anthropic.base_url",
	"google.project_id", "google.locations", "google.access_token", "google.endpoint",
	"bedrock.api_key", "bedrock.regions", "bedrock.endpoint",
	"http.dial_timeout", "http.response_header_timeout", "http.stream_idle_timeout",
	"http.max_attempts", "http.backoff", "http.shared_config",
	"nats.url", "nats.subject",
	"log.level", "log.format",
}

// Load reads the configuration from file, or from DefaultFile when file is
// empty and DefaultFile exists. A missing default file is not an error.
func Load(file string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	switch {
	case file != "":
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", file, err)
		}
	default:
		if _, err := os.Stat(DefaultFile); err == nil {
			v.SetConfigFile(DefaultFile)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("reading config %s: %w", DefaultFile, err)
			}
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		expandEnvHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// expandEnvHook replaces ${VAR} references in string values.
func expandEnvHook(from, _ reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	s, _ := data.(string)
	if !strings.Contains(s, "${") {
		return data, nil
	}
	return os.Expand(s, os.Getenv), nil
}

// Validate checks the configuration for inconsistent sections. A section
// with no credentials at all is fine, a half configured one is not.
func (c Config) Validate() error {
	var errs []error
	if c.Google.ProjectID != "" && c.Google.AccessToken == "" && c.Google.TokenSource == nil {
		errs = append(errs, errors.New("google: project_id is set without access_token"))
	}
	if c.Google.AccessToken != "" && c.Google.ProjectID == "" {
		errs = append(errs, errors.New("google: access_token is set without project_id"))
	}
	for alias, model := range c.Aliases {
		if strings.TrimSpace(model) == "" {
			errs = append(errs, fmt.Errorf("aliases: %q maps to an empty model", alias))
		}
	}
	if c.HTTP.MaxAttempts < 0 {
		errs = append(errs, errors.New("http: max_attempts must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
