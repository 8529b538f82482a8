package main

import (
	"fmt"

	"newsbot/config"
	"newsbot/rssfeeds"

	"github.com/spf13/cobra"
)

func feedsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "feeds",
		Short: "List configured feeds and built-in presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, titleStyle.Render("Configured feeds"))
			if len(cfg.Feeds) == 0 {
				fmt.Fprintln(out, infoStyle.Render("  none (set feeds in the config file or NEWSBOT_FEEDS)"))
			}
			for i, f := range cfg.Feeds {
				fmt.Fprintf(out, "  %2d. %-12s %s\n", i+1, f.Name, f.URL)
			}

			fmt.Fprintln(out, titleStyle.Render("Presets"))
			for _, name := range rssfeeds.PresetNames() {
				src := rssfeeds.ResolveFeedURL(name)
				fmt.Fprintf(out, "  %-12s %s\n", name, src.URL)
			}
			return nil
		},
	}
}
