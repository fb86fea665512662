package main

import (
	"context"

	"github.com/spf13/cobra"

	"tavern/cmd/internal/app"
	"tavern/cmd/internal/authstate"
)

func newRedirectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redirect",
		Short: "Redirect loop guard commands",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check <route>",
			Short: "Record a redirect attempt and report whether it may proceed",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
					allowed := a.Manager().NavigateTo(ctx, authstate.Decision(args[0]))
					return printJSON(cmd, map[string]bool{"allowed": allowed})
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Reset the guard after a redirect loop",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
					a.Manager().ForceAllowRedirects(ctx)
					return nil
				})
			},
		},
	)
	return cmd
}
