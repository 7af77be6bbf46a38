package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/casualjim/hoot/config"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/provider/anthropic"
	"github.com/casualjim/hoot/provider/bedrock"
	"github.com/casualjim/hoot/provider/fireworks"
	"github.com/casualjim/hoot/provider/google"
	"github.com/casualjim/hoot/provider/httpbase"
	"github.com/casualjim/hoot/provider/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stub claims every model with one of its prefixes.
type stub struct {
	provider.Provider
	name     provider.Name
	prefixes []string
}

func (s stub) Name() provider.Name { return s.name }

func (s stub) SupportsModel(model string) bool {
	for _, p := range s.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func names(ps []provider.Provider) []provider.Name {
	out := make([]provider.Name, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name())
	}
	return out
}

func TestRegistry_ForModel(t *testing.T) {
	r := New(
		stub{name: provider.Fireworks, prefixes: []string{"accounts/", "llama"}},
		stub{name: provider.Bedrock, prefixes: []string{"llama", "anthropic."}},
		stub{name: provider.OpenAI, prefixes: []string{"gpt-"}},
	)
	r.Alias("fast", "gpt-4o-mini")

	tests := []struct {
		name         string
		model        string
		wantProvider provider.Name
		wantModel    string
		wantErr      error
	}{
		{"direct", "gpt-4o", provider.OpenAI, "gpt-4o", nil},
		{"alias", "fast", provider.OpenAI, "gpt-4o-mini", nil},
		{"preference order", "llama-3", provider.Bedrock, "llama-3", nil},
		{"single vendor", "accounts/fireworks/models/x", provider.Fireworks, "accounts/fireworks/models/x", nil},
		{"unknown", "mystery", "", "mystery", ErrUnknownModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, model, err := r.ForModel(tt.model)
			assert.Equal(t, tt.wantModel, model)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, p.Name())
		})
	}
}

func TestRegistry_Candidates(t *testing.T) {
	r := New(
		stub{name: provider.Fireworks, prefixes: []string{"llama"}},
		stub{name: provider.Bedrock, prefixes: []string{"llama"}},
	)
	ps, _, err := r.Candidates("llama-3")
	require.NoError(t, err)
	assert.Equal(t, []provider.Name{provider.Bedrock, provider.Fireworks}, names(ps))
}

func TestRegistry_Get(t *testing.T) {
	r := New(stub{name: provider.Anthropic})

	p, err := r.Get(provider.Anthropic)
	require.NoError(t, err)
	assert.Equal(t, provider.Anthropic, p.Name())

	_, err = r.Get(provider.OpenAI)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistry_AddReplaces(t *testing.T) {
	r := New(stub{name: provider.OpenAI, prefixes: []string{"gpt-"}})
	r.Add(stub{name: provider.OpenAI, prefixes: []string{"o1"}})

	assert.Len(t, r.Providers(), 1)
	_, _, err := r.ForModel("gpt-4o")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Config{
		OpenAI:    openai.Config{APIKey: "sk"},
		Anthropic: anthropic.Config{APIKey: "ant"},
		Google:    google.Config{ProjectID: "p", AccessToken: "t"},
		Aliases:   map[string]string{"smart": anthropic.Claude35Haiku},
	}
	r, err := FromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []provider.Name{provider.OpenAI, provider.Anthropic, provider.GoogleVertex}, names(r.Providers()))

	p, model, err := r.ForModel("smart")
	require.NoError(t, err)
	assert.Equal(t, provider.Anthropic, p.Name())
	assert.Equal(t, anthropic.Claude35Haiku, model)

	p, _, err = r.ForModel(google.Gemini20FlashLite)
	require.NoError(t, err)
	assert.Equal(t, provider.GoogleVertex, p.Name())
}

func TestFromConfig_Invalid(t *testing.T) {
	_, err := FromConfig(context.Background(), config.Config{Google: google.Config{ProjectID: "p"}})
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestFromEnv(t *testing.T) {
	t.Setenv(openai.EnvAPIKey, "")
	t.Setenv(anthropic.EnvAPIKey, "")
	t.Setenv(google.EnvProjectID, "")
	t.Setenv(google.EnvAccessToken, "")
	t.Setenv(bedrock.EnvAPIKey, "br")
	t.Setenv(bedrock.EnvRegions, "us-west-2")
	t.Setenv(fireworks.EnvAPIKey, "fw")

	r := FromEnv(httpbase.Settings{})
	assert.Equal(t, []provider.Name{provider.Bedrock, provider.Fireworks}, names(r.Providers()))

	p, _, err := r.ForModel(bedrock.NovaMicro)
	require.NoError(t, err)
	assert.Equal(t, provider.Bedrock, p.Name())
}
