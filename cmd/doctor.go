package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobscout/internal/config"
	"github.com/nextlevelbuilder/jobscout/internal/mcp"
	"github.com/nextlevelbuilder/jobscout/internal/tools"
	"github.com/nextlevelbuilder/jobscout/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(probe)
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "start the MCP server and list its tools")
	return cmd
}

func runDoctor(probe bool) {
	fmt.Println(titleStyle.Render("jobscout doctor"))
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(config.ExpandHome(cfgPath)); err != nil {
		fmt.Println(dimStyle.Render(" (not found, using env/keyring)"))
	} else {
		fmt.Println(doneStyle.Render(" (OK)"))
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Credentials:")
	checkSecret(config.EnvOpenAIKey, cfg.Provider.APIKey)
	checkSecret(config.EnvBrightDataKey, cfg.MCP.APIToken)
	checkValue(config.EnvWebUnlockerZone, cfg.MCP.WebUnlockerZone)

	fmt.Println()
	fmt.Println("  Model:")
	fmt.Printf("    %-22s %s\n", "provider.model:", cfg.Provider.Model)
	fmt.Printf("    %-22s %s\n", "provider.apiBase:", cfg.Provider.APIBase)

	fmt.Println()
	fmt.Println("  MCP server:")
	fmt.Printf("    %-22s %s\n", "command:", cfg.MCP.Command)
	fmt.Printf("    %-22s %s\n", "start timeout:", cfg.StartTimeout())
	command, _, err := cfg.MCPCommand()
	if err != nil {
		fmt.Printf("    %-22s %s\n", "parse:", failedStyle.Render(err.Error()))
	} else {
		checkBinary(command)
	}

	if probe {
		fmt.Println()
		probeMCP(cfg)
	}

	fmt.Println()
	if err := cfg.Validate(); err != nil {
		fmt.Println(failedStyle.Render("Not ready: " + userMessage(err)))
		return
	}
	fmt.Println(doneStyle.Render("Doctor check complete."))
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-22s %s\n", name+":", failedStyle.Render("(not configured)"))
		return
	}
	fmt.Printf("    %-22s %s\n", name+":", config.MaskSecret(value))
}

func checkValue(name, value string) {
	if value == "" {
		fmt.Printf("    %-22s %s\n", name+":", failedStyle.Render("(not configured)"))
		return
	}
	fmt.Printf("    %-22s %s\n", name+":", value)
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-22s %s\n", name+":", failedStyle.Render("NOT FOUND on PATH"))
	} else {
		fmt.Printf("    %-22s %s\n", name+":", path)
	}
}

// probeMCP launches the server once and lists its tools.
func probeMCP(cfg *config.Config) {
	fmt.Println("  MCP probe:")
	command, args, err := cfg.MCPCommand()
	if err != nil {
		fmt.Printf("    %s\n", failedStyle.Render(err.Error()))
		return
	}
	sup := mcp.NewSupervisor(mcp.Options{
		Command:         command,
		Args:            args,
		APIToken:        cfg.MCP.APIToken,
		WebUnlockerZone: cfg.MCP.WebUnlockerZone,
		StartTimeout:    cfg.StartTimeout(),
		ToolPrefix:      cfg.MCP.ToolPrefix,
		ClientName:      "jobscout-doctor",
		ClientVersion:   Version,
	})
	defer sup.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StartTimeout()+30*time.Second)
	defer cancel()
	h, err := sup.Initialize(ctx)
	if err != nil {
		fmt.Printf("    %s\n", failedStyle.Render(userMessage(err)))
		return
	}
	list, err := sup.Tools(ctx)
	if err != nil {
		fmt.Printf("    %s\n", failedStyle.Render("list tools: "+err.Error()))
		return
	}
	// Register them the way a stage would, so name clashes show up here.
	reg := tools.NewRegistry()
	for _, t := range list {
		reg.Register(t)
	}
	fmt.Printf("    %-22s %s\n", "server:", h.ServerName())
	fmt.Printf("    %-22s %d\n", "tools:", reg.Count())
	for _, line := range toolSummary(reg) {
		fmt.Printf("      %s\n", dimStyle.Render(line))
	}
}

// toolSummary lists registered tools by name with the first line of each
// description, cut to fit a terminal row.
func toolSummary(reg *tools.Registry) []string {
	names := reg.List()
	out := make([]string, 0, len(names))
	for _, name := range names {
		t, ok := reg.Get(name)
		if !ok {
			continue
		}
		desc, _, _ := strings.Cut(strings.TrimSpace(t.Description()), "\n")
		if r := []rune(desc); len(r) > 60 {
			desc = string(r[:57]) + "..."
		}
		if desc == "" {
			out = append(out, name)
			continue
		}
		out = append(out, fmt.Sprintf("%-28s %s", name, desc))
	}
	return out
}
