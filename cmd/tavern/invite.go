package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"tavern/cmd/internal/app"
	"tavern/cmd/internal/invite"
)

func newInviteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "World invite commands",
	}
	cmd.AddCommand(newInviteOpenCmd(), newInviteCreateCmd(), newInviteRevokeCmd(), newInviteListCmd(), newInvitePendingCmd())
	return cmd
}

func newInviteOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <token> <world-name>",
		Short: "Open an invite link: redeem now, or save it until sign-in",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
				return printJSON(cmd, a.Manager().OpenInvite(ctx, args[0], args[1]))
			})
		},
	}
}

func newInviteCreateCmd() *cobra.Command {
	var (
		worldID   string
		createdBy string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an invite for a world and print its one-time token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
				if ttl <= 0 {
					ttl = a.Config().InviteTTL
				}
				in := invite.CreateInput{WorldID: worldID, TTL: ttl}
				if createdBy != "" {
					in.CreatedBy = &createdBy
				}
				inv, tok, err := a.Invites().CreateInvite(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cmd, struct {
					invite.Invite
					Token string `json:"token"`
				}{Invite: inv, Token: tok})
			})
		},
	}
	cmd.Flags().StringVar(&worldID, "world", "", "world id")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "profile id of the inviter")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "invite lifetime (default TAVERN_INVITE_TTL)")
	_ = cmd.MarkFlagRequired("world")
	return cmd
}

func newInviteRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <invite-id>",
		Short: "Revoke an invite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Invites().RevokeInvite(ctx, args[0])
			})
		},
	}
}

func newInviteListCmd() *cobra.Command {
	var (
		worldID string
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a world's invites, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
				invs, err := a.Invites().ListInvites(ctx, worldID, all)
				if err != nil {
					return err
				}
				if invs == nil {
					invs = []invite.Invite{}
				}
				return printJSON(cmd, invs)
			})
		},
	}
	cmd.Flags().StringVar(&worldID, "world", "", "world id")
	cmd.Flags().BoolVar(&all, "all", false, "include expired and revoked invites")
	_ = cmd.MarkFlagRequired("world")
	return cmd
}

func newInvitePendingCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show (or clear) the invite saved for after sign-in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
				cache := a.PendingInvite()
				if clear {
					cache.Clear(ctx)
					return nil
				}
				inv, ok := cache.Peek(ctx)
				if !ok {
					return printJSON(cmd, nil)
				}
				return printJSON(cmd, struct {
					WorldName string    `json:"worldName"`
					SavedAt   time.Time `json:"savedAt"`
				}{WorldName: inv.WorldName, SavedAt: inv.SavedAt()})
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "discard the pending invite")
	return cmd
}
