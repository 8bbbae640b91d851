package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobscout/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard: credentials, model, server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

const (
	secretsInKeyring = "keyring"
	secretsInFile    = "file"
)

// onboardAnswers is everything the wizard collects.
type onboardAnswers struct {
	openAIKey     string
	brightDataKey string
	zone          string
	model         string
	apiBase       string
	port          string
	serverToken   string
	secretStore   string
}

func runOnboard() error {
	fmt.Println(titleStyle.Render("jobscout setup"))
	fmt.Println()

	cfgPath := resolveConfigPath()
	cfg := config.Default()
	if _, err := os.Stat(config.ExpandHome(cfgPath)); err == nil {
		useExisting, err := confirmExisting(cfgPath)
		if err != nil {
			fmt.Println("Cancelled.")
			return nil
		}
		if useExisting {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				fmt.Printf("Warning: could not load existing config: %v\n", err)
			} else {
				cfg = loaded
			}
		}
	}

	ans, err := promptOnboard(cfg)
	if err != nil {
		fmt.Println("Cancelled.")
		return nil
	}
	if problems := validateOnboard(ans); len(problems) > 0 {
		for _, p := range problems {
			fmt.Println(failedStyle.Render("  ✗ " + p))
		}
		return fmt.Errorf("setup incomplete")
	}

	stored, err := applyOnboard(cfg, ans)
	if err != nil {
		return err
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(doneStyle.Render("✓ Config saved to " + config.ExpandHome(cfgPath)))
	if stored > 0 {
		fmt.Printf("  %d secret(s) stored in the OS keyring (service %q)\n", stored, config.KeyringService)
	}
	fmt.Println()
	fmt.Println("Next:")
	fmt.Println("  jobscout doctor --probe")
	fmt.Println("  jobscout analyze https://www.linkedin.com/in/<profile>/")
	return nil
}

// promptOnboard runs the wizard as one three-step form. Each field validates
// as it is entered.
func promptOnboard(cfg *config.Config) (*onboardAnswers, error) {
	ans := &onboardAnswers{
		zone:        cfg.MCP.WebUnlockerZone,
		model:       cfg.Provider.Model,
		apiBase:     cfg.Provider.APIBase,
		port:        strconv.Itoa(cfg.Server.Port),
		secretStore: secretsInKeyring,
	}

	form := huh.NewForm(
		huh.NewGroup(
			secretInput("Step 1 · OpenAI API key", cfg.Provider.APIKey, &ans.openAIKey,
				requireSecret("OpenAI API key", cfg.Provider.APIKey)),
			textInput("Model", "Used by all six stages unless overridden", &ans.model,
				requireValue("Model")),
			textInput("API base URL", "Any OpenAI-compatible endpoint", &ans.apiBase, validateAPIBase),
		),
		huh.NewGroup(
			secretInput("Step 2 · Bright Data API token", cfg.MCP.APIToken, &ans.brightDataKey,
				requireSecret("Bright Data API token", cfg.MCP.APIToken)),
			textInput("Web Unlocker zone", "Zone name from the Bright Data dashboard", &ans.zone,
				requireValue("Web Unlocker zone")),
		),
		huh.NewGroup(
			textInput("Step 3 · Server port", "Used by `jobscout serve`", &ans.port, validatePort),
			secretInput("Server bearer token (optional)", cfg.Server.Token, &ans.serverToken, nil),
			secretStoreSelect(&ans.secretStore),
		),
	).WithShowHelp(true)
	if err := form.Run(); err != nil {
		return nil, err
	}

	// Blank secret answers keep what the config already had.
	keep(&ans.openAIKey, cfg.Provider.APIKey)
	keep(&ans.brightDataKey, cfg.MCP.APIToken)
	keep(&ans.serverToken, cfg.Server.Token)
	return ans, nil
}

func keep(answer *string, current string) {
	if strings.TrimSpace(*answer) == "" {
		*answer = current
	}
}

// validateOnboard re-checks answers with the form's validators, for answers
// that did not come through the form.
func validateOnboard(ans *onboardAnswers) []string {
	checks := []struct {
		value    string
		validate func(string) error
	}{
		{ans.openAIKey, requireValue("OpenAI API key")},
		{ans.brightDataKey, requireValue("Bright Data API token")},
		{ans.zone, requireValue("Web Unlocker zone")},
		{ans.apiBase, validateAPIBase},
		{ans.port, validatePort},
	}
	var problems []string
	for _, c := range checks {
		if err := c.validate(c.value); err != nil {
			problems = append(problems, err.Error())
		}
	}
	return problems
}

// applyOnboard writes answers into cfg. With the keyring store, secrets are
// saved there and cleared from cfg. It returns how many went to the keyring.
func applyOnboard(cfg *config.Config, ans *onboardAnswers) (int, error) {
	cfg.Provider.Model = ans.model
	cfg.Provider.APIBase = ans.apiBase
	cfg.MCP.WebUnlockerZone = ans.zone
	cfg.Server.Port, _ = strconv.Atoi(strings.TrimSpace(ans.port))

	secrets := []struct {
		account string
		value   string
		field   *string
	}{
		{config.SecretOpenAIKey, ans.openAIKey, &cfg.Provider.APIKey},
		{config.SecretBrightDataKey, ans.brightDataKey, &cfg.MCP.APIToken},
		{config.SecretServerToken, ans.serverToken, &cfg.Server.Token},
	}

	if ans.secretStore != secretsInKeyring {
		for _, s := range secrets {
			*s.field = s.value
		}
		return 0, nil
	}

	stored := 0
	for _, s := range secrets {
		*s.field = ""
		if s.value == "" {
			continue
		}
		if err := config.StoreSecret(s.account, s.value); err != nil {
			return stored, fmt.Errorf("store %s in keyring: %w", s.account, err)
		}
		stored++
	}
	return stored, nil
}
