package commands

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wallet-back",
	Short: "Wallet Synchronization Coordinator",
	Long: `A wallet synchronization coordinator for crypto portfolio dashboards.

Features:
• Automatic once-a-day bulk wallet sync triggering
• Controller election so only one instance triggers
• Rate limiting with a shared cooldown window
• Live sync progress from the backend event stream (SSE or NATS)
• REST and WebSocket APIs for presentation surfaces
• Optional MySQL audit log of every trigger attempt`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
