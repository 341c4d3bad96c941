// Package config resolves runtime configuration from the environment and an
// optional pilot-config.json in $HOME or the working directory. Environment
// variables always win over file values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ApprovalMode selects the confirmation policy for side-effecting tools.
type ApprovalMode string

const (
	ApprovalDefault  ApprovalMode = "default"
	ApprovalAutoEdit ApprovalMode = "auto_edit"
	ApprovalYolo     ApprovalMode = "yolo"
)

// ParseApprovalMode validates a mode string; empty means default.
func ParseApprovalMode(s string) (ApprovalMode, error) {
	switch ApprovalMode(strings.TrimSpace(s)) {
	case "", ApprovalDefault:
		return ApprovalDefault, nil
	case ApprovalAutoEdit:
		return ApprovalAutoEdit, nil
	case ApprovalYolo:
		return ApprovalYolo, nil
	default:
		return ApprovalDefault, fmt.Errorf("unknown approval mode: %q", s)
	}
}

// Config carries everything the core needs to run one process.
type Config struct {
	APIKey     string
	Endpoint   string
	Model      string
	APIVersion string
	Azure      bool // Azure-style auth (api-key header + api-version query)

	Debug            bool
	ApprovalMode     ApprovalMode
	NonInteractive   bool
	EnableMonitoring bool
	MonitoringPort   int

	LLMTimeout  time.Duration
	MaxRetries  int
	ToolTimeout time.Duration
}

const (
	defaultModel          = "gpt-4o-mini"
	defaultMonitoringPort = 4000
	defaultLLMTimeout     = 120 * time.Second
	defaultToolTimeout    = 30 * time.Second
	defaultMaxRetries     = 2
)

// Load reads pilot-config.json (if present) and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("pilot-config")
	v.SetConfigType("json")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for _, key := range []string{
		"API_KEY", "AZURE_API_KEY",
		"ENDPOINT", "AZURE_ENDPOINT_URL",
		"MODEL", "AZURE_MODEL",
		"API_VERSION", "DEBUG", "APPROVAL_MODE",
		"ENABLE_MONITORING", "MONITORING_PORT",
	} {
		_ = v.BindEnv(key, key)
	}

	cfg := &Config{
		Model:          defaultModel,
		MonitoringPort: defaultMonitoringPort,
		LLMTimeout:     defaultLLMTimeout,
		ToolTimeout:    defaultToolTimeout,
		MaxRetries:     defaultMaxRetries,
		ApprovalMode:   ApprovalDefault,
	}

	cfg.APIKey = v.GetString("API_KEY")
	cfg.Endpoint = v.GetString("ENDPOINT")
	if azureKey := v.GetString("AZURE_API_KEY"); cfg.APIKey == "" && azureKey != "" {
		cfg.APIKey = azureKey
		cfg.Azure = true
	}
	if azureEndpoint := v.GetString("AZURE_ENDPOINT_URL"); cfg.Endpoint == "" && azureEndpoint != "" {
		cfg.Endpoint = azureEndpoint
		cfg.Azure = true
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY or AZURE_API_KEY is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("ENDPOINT or AZURE_ENDPOINT_URL is required")
	}

	if model := v.GetString("MODEL"); model != "" {
		cfg.Model = model
	} else if model := v.GetString("AZURE_MODEL"); model != "" {
		cfg.Model = model
	}
	cfg.APIVersion = v.GetString("API_VERSION")
	cfg.Debug = v.GetString("DEBUG") == "true"
	cfg.EnableMonitoring = v.GetString("ENABLE_MONITORING") == "true"
	if port := v.GetInt("MONITORING_PORT"); port > 0 {
		cfg.MonitoringPort = port
	}

	mode, err := ParseApprovalMode(v.GetString("APPROVAL_MODE"))
	if err != nil {
		return nil, err
	}
	cfg.ApprovalMode = mode

	return cfg, nil
}
