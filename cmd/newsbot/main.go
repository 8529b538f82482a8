package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "newsbot",
		Short:         "newsbot: daily tech news threads",
		Long:          "Collects the day's news from syndication feeds, writes headlines and summaries with a text-generation service and publishes them as threads.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (default $NEWSBOT_CONFIG)")

	root.AddCommand(
		runCmd(&configPath),
		serveCmd(&configPath),
		stateCmd(&configPath),
		feedsCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
