package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/wschat/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("wschat Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		// 1. Store backend
		backend := prompt(scanner, "Store backend (local or firestore)", cfg.Store.Backend)
		switch backend {
		case "local", "firestore":
			cfg.Store.Backend = backend
		default:
			return fmt.Errorf("unknown store backend %q", backend)
		}

		// 2. Firestore project
		if cfg.Store.Backend == "firestore" {
			cfg.Store.ProjectID = prompt(scanner, "Google Cloud project id", cfg.Store.ProjectID)
		}

		// 3. Agent relay
		cfg.Relay.Endpoint = prompt(scanner, "Agent relay endpoint", cfg.Relay.Endpoint)
		cfg.Relay.BackendURL = prompt(scanner, "Operational backend URL", cfg.Relay.BackendURL)

		// 4. Auth API key (optional)
		cfg.Auth.APIKey = prompt(scanner, "Auth API key (optional)", cfg.Auth.APIKey)

		// 5. LLM key for `wschat relay serve` (optional)
		cfg.Agent.LLM.APIKey = prompt(scanner, "LLM API key for the dev agent (optional)", cfg.Agent.LLM.APIKey)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
