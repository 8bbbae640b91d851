// Package config loads jobscout configuration from a JSON5 file, the OS keyring
// and environment variables (in increasing order of precedence).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/titanous/json5"
)

const (
	DefaultModel           = "gpt-5"
	DefaultAPIBase         = "https://api.openai.com/v1"
	DefaultMCPCommand      = "npx -y @brightdata/mcp"
	DefaultStartTimeoutSec = 10
	DefaultToolTimeoutSec  = 120
	DefaultConfigPath      = "~/.jobscout/config.json5"
)

// Environment variable names. The MCP subprocess credentials keep the names
// used by the Bright Data tooling.
const (
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvOpenAIBase      = "OPENAI_BASE_URL"
	EnvModel           = "JOBSCOUT_MODEL"
	EnvBrightDataKey   = "BRIGHT_DATA_API_KEY"
	EnvWebUnlockerZone = "WEB_UNLOCKER_ZONE"
	EnvMCPCommand      = "JOBSCOUT_MCP_COMMAND"
	EnvMCPStartTimeout = "JOBSCOUT_MCP_START_TIMEOUT"
	EnvConfigPath      = "JOBSCOUT_CONFIG"
	EnvServerToken     = "JOBSCOUT_SERVER_TOKEN"
)

// Config is the root configuration.
type Config struct {
	Provider  ProviderConfig  `json:"provider"`
	MCP       MCPConfig       `json:"mcp"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Server    ServerConfig    `json:"server"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// ProviderConfig configures the OpenAI-compatible model endpoint.
type ProviderConfig struct {
	APIKey     string `json:"apiKey,omitempty"`
	APIBase    string `json:"apiBase,omitempty"`
	Model      string `json:"model,omitempty"`
	TimeoutSec int    `json:"timeoutSec,omitempty"`
}

// MCPConfig configures the web-access tool subprocess.
type MCPConfig struct {
	Command         string `json:"command,omitempty"`
	APIToken        string `json:"apiToken,omitempty"`
	WebUnlockerZone string `json:"webUnlockerZone,omitempty"`
	StartTimeoutSec int    `json:"startTimeoutSec,omitempty"`
	ToolTimeoutSec  int    `json:"toolTimeoutSec,omitempty"`
	ToolPrefix      string `json:"toolPrefix,omitempty"`
	MaxCallsPerHour int    `json:"maxCallsPerHour,omitempty"`
}

// PipelineConfig tunes stage execution.
type PipelineConfig struct {
	MaxRetries        int                      `json:"maxRetries"`
	RetryBaseDelayMs  int                      `json:"retryBaseDelayMs,omitempty"`
	RetryMaxDelayMs   int                      `json:"retryMaxDelayMs,omitempty"`
	MaxToolIterations int                      `json:"maxToolIterations,omitempty"`
	StageMaxTokens    int                      `json:"stageMaxTokens,omitempty"`
	InputGuard        string                   `json:"inputGuard,omitempty"`    // off, log, warn, block
	ContextWindow     int                      `json:"contextWindow,omitempty"` // tokens; 0 disables tool result pruning
	Stages            map[string]StageOverride `json:"stages,omitempty"`
}

// StageOverride replaces the model or instructions of one stage, keyed by stage ID.
type StageOverride struct {
	Model        string `json:"model,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// ServerConfig configures `jobscout serve`.
type ServerConfig struct {
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	Token        string `json:"token,omitempty"`
	RateLimitRPM int    `json:"rateLimitRpm,omitempty"`
	CacheSize    int    `json:"cacheSize,omitempty"`
	CacheTTLMin  int    `json:"cacheTtlMin,omitempty"`
	MaxRuns      int    `json:"maxRuns,omitempty"`
}

// TelemetryConfig configures OTLP span export (only honored in -tags otel builds).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"`
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"serviceName,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Default returns a config with every optional field populated.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			APIBase:    DefaultAPIBase,
			Model:      DefaultModel,
			TimeoutSec: 300,
		},
		MCP: MCPConfig{
			Command:         DefaultMCPCommand,
			StartTimeoutSec: DefaultStartTimeoutSec,
			ToolTimeoutSec:  DefaultToolTimeoutSec,
		},
		Pipeline: PipelineConfig{
			MaxRetries:        2,
			RetryBaseDelayMs:  2000,
			RetryMaxDelayMs:   30000,
			MaxToolIterations: 12,
			InputGuard:        "warn",
			ContextWindow:     128000,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         18790,
			RateLimitRPM: 6,
			CacheSize:    64,
			CacheTTLMin:  60,
			MaxRuns:      2,
		},
	}
}

// Load reads the config file at path (a missing file is not an error), then
// overlays keyring secrets and environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ExpandHome(path))
	switch {
	case err == nil:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applySecrets()
	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// Save writes cfg as indented JSON (a JSON5 subset) with mode 0600.
func Save(path string, cfg *Config) error {
	path = ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func (c *Config) applyEnv() {
	setString(&c.Provider.APIKey, EnvOpenAIKey)
	setString(&c.Provider.APIBase, EnvOpenAIBase)
	setString(&c.Provider.Model, EnvModel)
	setString(&c.MCP.APIToken, EnvBrightDataKey)
	setString(&c.MCP.WebUnlockerZone, EnvWebUnlockerZone)
	setString(&c.MCP.Command, EnvMCPCommand)
	setString(&c.Server.Token, EnvServerToken)

	if v := strings.TrimSpace(os.Getenv(EnvMCPStartTimeout)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MCP.StartTimeoutSec = int(d.Round(time.Second) / time.Second)
		} else if n, err := strconv.Atoi(v); err == nil {
			c.MCP.StartTimeoutSec = n
		}
	}
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Provider.APIBase == "" {
		c.Provider.APIBase = d.Provider.APIBase
	}
	if c.Provider.Model == "" {
		c.Provider.Model = d.Provider.Model
	}
	if c.Provider.TimeoutSec <= 0 {
		c.Provider.TimeoutSec = d.Provider.TimeoutSec
	}
	if c.MCP.Command == "" {
		c.MCP.Command = d.MCP.Command
	}
	if c.MCP.StartTimeoutSec <= 0 {
		c.MCP.StartTimeoutSec = d.MCP.StartTimeoutSec
	}
	if c.MCP.ToolTimeoutSec <= 0 {
		c.MCP.ToolTimeoutSec = d.MCP.ToolTimeoutSec
	}
	if c.Pipeline.MaxRetries < 0 {
		c.Pipeline.MaxRetries = 0
	}
	if c.Pipeline.MaxToolIterations <= 0 {
		c.Pipeline.MaxToolIterations = d.Pipeline.MaxToolIterations
	}
	if c.Pipeline.InputGuard == "" {
		c.Pipeline.InputGuard = d.Pipeline.InputGuard
	}
	if c.Server.Port <= 0 {
		c.Server.Port = d.Server.Port
	}

	if len(c.Pipeline.Stages) > 0 {
		normalized := make(map[string]StageOverride, len(c.Pipeline.Stages))
		for id, o := range c.Pipeline.Stages {
			normalized[NormalizeStageID(id)] = o
		}
		c.Pipeline.Stages = normalized
	}
}

// MCPCommand splits the configured command line into program and arguments.
func (c *Config) MCPCommand() (string, []string, error) {
	words, err := shellwords.Parse(c.MCP.Command)
	if err != nil {
		return "", nil, fmt.Errorf("parse mcp command %q: %w", c.MCP.Command, err)
	}
	if len(words) == 0 {
		return "", nil, fmt.Errorf("mcp command is empty")
	}
	return words[0], words[1:], nil
}

// StartTimeout returns the subprocess readiness bound.
func (c *Config) StartTimeout() time.Duration {
	return time.Duration(c.MCP.StartTimeoutSec) * time.Second
}

// StageOverride returns the override for a stage ID, if any.
func (c *Config) StageOverride(stageID string) (StageOverride, bool) {
	o, ok := c.Pipeline.Stages[NormalizeStageID(stageID)]
	return o, ok
}

// ResolvePath returns the config path from flag, env, or default.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return DefaultConfigPath
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
