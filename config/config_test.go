package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/casualjim/hoot/provider/google"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
openai:
  api_key: ${TEST_OPENAI_KEY}
anthropic:
  api_key: ant-file
  base_url: https://proxy.internal/v1
google:
  project_id: owl-project
  access_token: token
  locations: [us-central1, europe-west4]
bedrock:
  api_key: br-key
aliases:
  fast: gpt-4o-mini
http:
  stream_idle_timeout: 45s
  max_attempts: 5
nats:
  url: nats://localhost:4222
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hoot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")
	t.Setenv("HOOT_ANTHROPIC_API_KEY", "ant-env")
	t.Setenv("HOOT_BEDROCK_REGIONS", "us-east-1,us-west-2")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "ant-env", cfg.Anthropic.APIKey, "environment overrides the file")
	assert.Equal(t, "https://proxy.internal/v1", cfg.Anthropic.BaseURL)
	assert.Equal(t, []string{"us-central1", "europe-west4"}, cfg.Google.Locations)
	assert.Equal(t, []string{"us-east-1", "us-west-2"}, cfg.Bedrock.Regions)
	assert.Equal(t, map[string]string{"fast": "gpt-4o-mini"}, cfg.Aliases)
	assert.Equal(t, 45*time.Second, cfg.HTTP.StreamIdleTimeout)
	assert.Equal(t, 5, cfg.HTTP.MaxAttempts)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, DefaultRunSubject, cfg.NATS.Subject)
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{google.DefaultLocation}, cfg.Google.Locations)
	assert.Equal(t, 3, cfg.HTTP.MaxAttempts)
	assert.Empty(t, cfg.OpenAI.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"empty", Config{}, ""},
		{"google without token", Config{Google: google.Config{ProjectID: "p"}}, "google: project_id is set without access_token"},
		{"google without project", Config{Google: google.Config{AccessToken: "t"}}, "google: access_token is set without project_id"},
		{"empty alias", Config{Aliases: map[string]string{"fast": " "}}, `aliases: "fast" maps to an empty model`},
		{"negative attempts", Config{HTTP: HTTP{MaxAttempts: -1}}, "max_attempts"},
		{"log format", Config{Log: Log{Format: "xml"}}, `unknown format "xml"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
