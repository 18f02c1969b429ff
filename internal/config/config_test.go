package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const validYAML = `
server:
  port: 9090
chat:
  system_prompt: "You are a helpful assistant."
providers:
  openai:
    base_url: https://api.openai.com/v1
    api_key: ${TEST_OPENAI_KEY}
    models: [gpt-4o, gpt-4o-mini]
  groq:
    base_url: https://api.groq.com/openai/v1
    temperature: 0.6
    models: [llama-3.3-70b-versatile]
research:
  search_url: https://api.tavily.com
  accounts_path: /tmp/accounts.db
identity:
  base_url: https://auth.example.com
`

func TestLoad(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sk-from-env", cfg.Providers["openai"].APIKey)
	require.NotNil(t, cfg.Providers["groq"].Temperature)
	assert.Equal(t, 0.6, *cfg.Providers["groq"].Temperature)
	assert.Nil(t, cfg.Providers["openai"].Temperature)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
providers:
  p:
    base_url: https://example.com
    models: [m1]
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultResearchLimit, cfg.Research.DefaultLimit)
	assert.Equal(t, DefaultSearchResults, cfg.Research.MaxResults)
	assert.Equal(t, DefaultUpstreamTimeout, cfg.Chat.UpstreamTimeout)
	assert.Equal(t, float64(DefaultRateLimit), cfg.RateLimit.RPS)
}

func TestValidate_DuplicateModel(t *testing.T) {
	_, err := Load(writeConfig(t, `
providers:
  a:
    base_url: https://a.example.com
    models: [shared-model]
  b:
    base_url: https://b.example.com
    models: [shared-model]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `model "shared-model" claimed by both`)
}

func TestValidate_NoProviders(t *testing.T) {
	_, err := Load(writeConfig(t, `server: {port: 8080}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one provider")
}

func TestValidate_MissingBaseURL(t *testing.T) {
	_, err := Load(writeConfig(t, `
providers:
  p:
    models: [m1]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no base_url")
}

func TestValidate_NoModels(t *testing.T) {
	_, err := Load(writeConfig(t, `
providers:
  p:
    base_url: https://example.com
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serves no models")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
