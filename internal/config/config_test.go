package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"API_KEY", "AZURE_API_KEY", "ENDPOINT", "AZURE_ENDPOINT_URL",
		"MODEL", "AZURE_MODEL", "API_VERSION", "DEBUG", "APPROVAL_MODE",
		"ENABLE_MONITORING", "MONITORING_PORT",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("API_KEY", "sk-test")
	t.Setenv("ENDPOINT", "https://llm.example.com/v1")
	t.Setenv("MODEL", "gpt-4o")
	t.Setenv("APPROVAL_MODE", "auto_edit")
	t.Setenv("MONITORING_PORT", "9200")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "https://llm.example.com/v1", cfg.Endpoint)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.False(t, cfg.Azure)
	assert.Equal(t, ApprovalAutoEdit, cfg.ApprovalMode)
	assert.Equal(t, 9200, cfg.MonitoringPort)
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("API_KEY", "sk-test")
	t.Setenv("ENDPOINT", "https://llm.example.com/v1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 4000, cfg.MonitoringPort)
	assert.Equal(t, ApprovalDefault, cfg.ApprovalMode)
	assert.False(t, cfg.EnableMonitoring)
	assert.Equal(t, 2, cfg.MaxRetries)
}

func TestLoadAzureVariables(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("AZURE_API_KEY", "az-key")
	t.Setenv("AZURE_ENDPOINT_URL", "https://azure.example.com")
	t.Setenv("AZURE_MODEL", "gpt-4o-mini-deploy")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Azure)
	assert.Equal(t, "az-key", cfg.APIKey)
	assert.Equal(t, "https://azure.example.com", cfg.Endpoint)
	assert.Equal(t, "gpt-4o-mini-deploy", cfg.Model)
}

func TestLoadRequiresKeyAndEndpoint(t *testing.T) {
	clearConfigEnv(t)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY")

	t.Setenv("API_KEY", "sk-test")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENDPOINT")
}

func TestLoadReadsConfigFile(t *testing.T) {
	clearConfigEnv(t)
	home := os.Getenv("HOME")
	require.NoError(t, os.WriteFile(filepath.Join(home, "pilot-config.json"),
		[]byte(`{"API_KEY":"file-key","ENDPOINT":"https://file.example.com","MODEL":"file-model"}`), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, "file-model", cfg.Model)

	// Environment wins over the file.
	t.Setenv("MODEL", "env-model")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Model)
}

func TestParseApprovalMode(t *testing.T) {
	mode, err := ParseApprovalMode("")
	require.NoError(t, err)
	assert.Equal(t, ApprovalDefault, mode)

	mode, err = ParseApprovalMode("yolo")
	require.NoError(t, err)
	assert.Equal(t, ApprovalYolo, mode)

	_, err = ParseApprovalMode("whatever")
	require.Error(t, err)
}

func TestLoadRejectsUnknownApprovalMode(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("API_KEY", "sk-test")
	t.Setenv("ENDPOINT", "https://llm.example.com/v1")
	t.Setenv("APPROVAL_MODE", "reckless")

	_, err := Load()
	require.Error(t, err)
}
