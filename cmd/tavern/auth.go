package main

import (
	"context"

	"github.com/spf13/cobra"

	"tavern/cmd/internal/app"
)

func newRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route",
		Short: "Print the current routing decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
				m := a.Manager()
				r := m.GetRoutingDecision(ctx)
				return printJSON(cmd, struct {
					Decision        string `json:"decision"`
					ProfileID       string `json:"profileId,omitempty"`
					Authenticated   bool   `json:"authenticated"`
					ReducedSecurity bool   `json:"reducedSecurity"`
				}{
					Decision:        string(r.Decision),
					ProfileID:       r.ProfileID,
					Authenticated:   m.IsAuthenticated(ctx),
					ReducedSecurity: a.ReducedSecurity(),
				})
			})
		},
	}
}

func newSignInCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password, then redeem any pending invite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
				out, err := a.Manager().SignInWithPassword(ctx, email, pw)
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prefer stdin or TAVERN_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSignUpCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
				out, err := a.Manager().SignUp(ctx, email, pw)
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prefer stdin or TAVERN_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSignOutCmd() *cobra.Command {
	var wipe bool
	cmd := &cobra.Command{
		Use:   "signout",
		Short: "Sign out and clear local auth state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
				if wipe {
					a.Manager().DeleteAccountLocalState(ctx)
					return nil
				}
				return a.Manager().SignOut(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&wipe, "wipe", false, "also remove every engine-owned local key (after account deletion)")
	return cmd
}

func newOAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "oauth <provider>",
		Short: "Start a social sign-in and print the authorization URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
				start, err := a.Manager().StartOAuth(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, start)
			})
		},
	}
}

func newCallbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callback <code>",
		Short: "Complete an OAuth or email-confirmation callback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
				out, err := a.Manager().CompleteCallback(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	}
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Profile commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "complete <username>",
		Short: "Set the username for the signed-in user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
				out, err := a.Manager().CompleteProfile(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	})
	return cmd
}
