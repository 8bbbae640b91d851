package config

import (
	"fmt"
	"strings"
)

// ValidationError lists every required setting that is absent.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
}

// Validate checks that the three credentials needed for a run are present.
// All missing keys are reported at once.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Provider.APIKey) == "" {
		missing = append(missing, EnvOpenAIKey)
	}
	if strings.TrimSpace(c.MCP.APIToken) == "" {
		missing = append(missing, EnvBrightDataKey)
	}
	if strings.TrimSpace(c.MCP.WebUnlockerZone) == "" {
		missing = append(missing, EnvWebUnlockerZone)
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	if _, _, err := c.MCPCommand(); err != nil {
		return err
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Provider.APIKey = MaskSecret(c.Provider.APIKey)
	cp.MCP.APIToken = MaskSecret(c.MCP.APIToken)
	cp.Server.Token = MaskSecret(c.Server.Token)
	if len(c.Telemetry.Headers) > 0 {
		cp.Telemetry.Headers = make(map[string]string, len(c.Telemetry.Headers))
		for k, v := range c.Telemetry.Headers {
			cp.Telemetry.Headers[k] = MaskSecret(v)
		}
	}
	return &cp
}

// MaskSecret keeps the first four characters of long values.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****"
	}
}
