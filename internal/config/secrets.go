package config

import (
	"errors"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name secrets are stored under.
const KeyringService = "jobscout"

// Keyring account names.
const (
	SecretOpenAIKey     = "openai-api-key"
	SecretBrightDataKey = "bright-data-api-key"
	SecretServerToken   = "server-token"
)

// StoreSecret saves a secret in the OS keyring.
func StoreSecret(account, value string) error {
	return keyring.Set(KeyringService, account, value)
}

// DeleteSecret removes a secret. A missing entry is not an error.
func DeleteSecret(account string) error {
	if err := keyring.Delete(KeyringService, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// applySecrets fills credentials from the keyring, overriding file values.
// An unavailable keyring (headless Linux without a secret service) is ignored.
func (c *Config) applySecrets() {
	fill := func(dst *string, account string) {
		v, err := keyring.Get(KeyringService, account)
		if err != nil {
			if !errors.Is(err, keyring.ErrNotFound) {
				slog.Debug("keyring lookup failed", "account", account, "error", err)
			}
			return
		}
		if v != "" {
			*dst = v
		}
	}
	fill(&c.Provider.APIKey, SecretOpenAIKey)
	fill(&c.MCP.APIToken, SecretBrightDataKey)
	fill(&c.Server.Token, SecretServerToken)
}
