package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=X.Y.Z".
var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "askcards",
	Short: "Ask questions, collect knowledge cards, keep verified conversations",
	Long: `askcards talks to a retrieval-backed answering service. Every answer comes
with knowledge cards; bookmark the ones worth keeping and save whole
conversations for later export.

Examples:
  askcards chat
  askcards ask "what is kimchi?" --bookmark
  askcards bookmarks list
  askcards conversations export <id> --format html --output ~/Documents
  askcards serve --mcp`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the askcards version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "askcards version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(bookmarksCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
