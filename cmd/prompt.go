package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nextlevelbuilder/jobscout/internal/config"
)

// Field validators shared by the onboarding form and validateOnboard, so a
// value the form accepts is never rejected afterwards.

func validatePort(s string) error {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("invalid server port: %s", s)
	}
	return nil
}

func validateAPIBase(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API base URL must be an absolute http(s) URL: %q", s)
	}
	return nil
}

// requireValue rejects blank answers for the named field.
func requireValue(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(name + " is required")
		}
		return nil
	}
}

// requireSecret accepts a blank answer only when current already holds a
// value to keep.
func requireSecret(name, current string) func(string) error {
	if current != "" {
		return func(string) error { return nil }
	}
	return requireValue(name)
}

// textInput edits *dst in place; the current value is pre-filled so Enter
// keeps it.
func textInput(title, description string, dst *string, validate func(string) error) *huh.Input {
	in := huh.NewInput().Title(title).Description(description).Value(dst)
	if validate != nil {
		in = in.Validate(validate)
	}
	return in
}

// secretInput never shows the stored secret. A blank answer keeps current,
// which the description says in masked form.
func secretInput(title, current string, dst *string, validate func(string) error) *huh.Input {
	desc := ""
	if current != "" {
		desc = "Leave empty to keep " + config.MaskSecret(current)
	}
	in := huh.NewInput().Title(title).Description(desc).EchoMode(huh.EchoModePassword).Value(dst)
	if validate != nil {
		in = in.Validate(validate)
	}
	return in
}

// secretStoreSelect picks where applyOnboard puts credentials.
func secretStoreSelect(dst *string) *huh.Select[string] {
	return huh.NewSelect[string]().
		Title("Where should secrets be stored?").
		Options(
			huh.NewOption("OS keyring  (recommended)", secretsInKeyring).Selected(true),
			huh.NewOption("Config file (mode 0600)", secretsInFile),
		).
		Value(dst)
}

// confirmExisting asks whether an existing config file should seed the form.
func confirmExisting(path string) (bool, error) {
	use := true
	err := huh.NewConfirm().
		Title("Use existing config at " + path + " as base?").
		Affirmative("Yes").
		Negative("No").
		Value(&use).
		Run()
	return use, err
}
