package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobscout/internal/config"
	"github.com/nextlevelbuilder/jobscout/internal/pipeline"
)

func stagesCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List pipeline stages with their models and tool access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			return printStages(cfg, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

type stageListEntry struct {
	Index      int    `json:"index"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	Model      string `json:"model"`
	WebAccess  bool   `json:"webAccess"`
	Overridden bool   `json:"overridden"`
}

func stageEntries(cfg *config.Config) []stageListEntry {
	stages := pipeline.BuildStages(cfg.Provider.Model, cfg.Pipeline.Stages)
	entries := make([]stageListEntry, len(stages))
	for i, s := range stages {
		_, overridden := cfg.StageOverride(s.ID)
		entries[i] = stageListEntry{
			Index:      i + 1,
			ID:         s.ID,
			Name:       s.Name,
			Model:      s.Model,
			WebAccess:  s.UsesTools,
			Overridden: overridden,
		}
	}
	return entries
}

func printStages(cfg *config.Config, jsonOutput bool) error {
	entries := stageEntries(cfg)
	if jsonOutput {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tNAME\tMODEL\tWEB")
	for _, e := range entries {
		web := "-"
		if e.WebAccess {
			web = "yes"
		}
		model := e.Model
		if e.Overridden {
			model += " *"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Index, e.ID, e.Name, model, web)
	}
	tw.Flush()
	if len(cfg.Pipeline.Stages) > 0 {
		fmt.Println(dimStyle.Render("* overridden in config"))
	}
	return nil
}
