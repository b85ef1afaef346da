package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/user/wschat/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or change wschat settings",
	Long: `Read and write ~/.wschat/config.json by dotted key, for example
store.backend, relay.endpoint, chat.agent_marker or agent.llm.model.
auth.api_key and agent.llm.api_key are always shown masked.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every setting, secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := config.ListValues(loadConfig(), true)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(os.Stdout, "%s = %v\n", k, values[k])
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting, e.g. relay.endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Writes the defaults on first use so every key resolves.
		loadConfig()
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, displayValue(args[0], val))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting, e.g. store.backend firestore",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		loadConfig()
		if err := config.SetValue(cfgPath, args[0], args[1]); err != nil {
			return err
		}
		shown := any(args[1])
		if config.IsSecretKey(args[0]) {
			shown = "***"
		}
		fmt.Fprintf(os.Stdout, "Set %s = %v\n", args[0], shown)
		return nil
	},
}

// displayValue masks the API keys before `config get` prints them.
func displayValue(key string, val any) any {
	if !config.IsSecretKey(key) {
		return val
	}
	return config.MaskSecrets(map[string]any{key: val})[key]
}
