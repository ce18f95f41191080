package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove stored records and cached data",
	Long: `Reset removes the record store and other rebuildable data.

This will NOT remove:
- The identity key
- Configuration files

Pass --identity to also remove the identity key, and --config to remove the
configuration. Requires --force.`,
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig()
		if err != nil {
			fmt.Printf("Failed to load configuration: %v\n", err)
			os.Exit(1)
		}

		includeIdentity, _ := cmd.Flags().GetBool("identity")
		includeConfig, _ := cmd.Flags().GetBool("config")
		force, _ := cmd.Flags().GetBool("force")

		fmt.Printf("This will remove:\n")
		fmt.Printf("  - Record store: %s\n", config.DataDirectory)
		if includeIdentity {
			fmt.Printf("  - Identity key: %s\n", keyPath())
		}
		if includeConfig {
			fmt.Printf("  - Configuration: %s\n", configPath())
		}

		if !force {
			fmt.Println("\nRe-run with --force to proceed")
			return
		}

		if err := os.RemoveAll(config.DataDirectory); err != nil {
			fmt.Printf("Failed to remove data directory: %v\n", err)
			os.Exit(1)
		}
		if includeIdentity {
			if err := os.Remove(keyPath()); err != nil && !os.IsNotExist(err) {
				fmt.Printf("Failed to remove identity key: %v\n", err)
				os.Exit(1)
			}
		}
		if includeConfig {
			if err := os.Remove(configPath()); err != nil && !os.IsNotExist(err) {
				fmt.Printf("Failed to remove configuration: %v\n", err)
				os.Exit(1)
			}
		}

		fmt.Println("Reset complete")
	},
}

func init() {
	resetCmd.Flags().Bool("identity", false, "Also remove the identity key")
	resetCmd.Flags().Bool("config", false, "Also remove the configuration file")
	resetCmd.Flags().Bool("force", false, "Actually perform the reset")

	rootCmd.AddCommand(resetCmd)
}
