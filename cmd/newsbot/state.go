package main

import (
	"context"
	"fmt"
	"io"

	"newsbot/config"
	"newsbot/runstate"

	"github.com/spf13/cobra"
)

func stateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect stored run state",
	}

	show := &cobra.Command{
		Use:   "show [date]",
		Short: "List stored run dates, or show one run thread by thread",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// only the state section matters here, so skip full validation
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			store, err := runstate.Open(ctx, cfg.State, nil)
			if err != nil {
				return err
			}
			if c, ok := store.(io.Closer); ok {
				defer c.Close()
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				dates, err := store.List(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderDates(dates))
				return nil
			}

			state, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderState(state))
			return nil
		},
	}

	cmd.AddCommand(show)
	return cmd
}
