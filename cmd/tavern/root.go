package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tavern/cmd/internal/app"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tavern",
		Short:         "Session, routing and world-invite engine",
		Long:          "tavern decides where a user belongs (welcome, login, profile setup or the main screen), keeps a pending world invite across sign-in and redeems it exactly once.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newRouteCmd(),
		newSignInCmd(),
		newSignUpCmd(),
		newSignOutCmd(),
		newOAuthCmd(),
		newCallbackCmd(),
		newProfileCmd(),
		newInviteCmd(),
		newRedirectCmd(),
		newServeCmd(),
		newMigrateCmd(),
		newVersionCmd(),
	)
	return root
}

// runWithApp bootstraps the App for one command, cancels on SIGINT/SIGTERM
// and always closes it.
func runWithApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Bootstrap(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readPassword returns the --password flag or, when empty, the first line of stdin.
func readPassword(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv("TAVERN_PASSWORD"); v != "" {
		return v, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", errors.New("password required: use --password, TAVERN_PASSWORD or stdin")
		}
		return "", errors.New("password required")
	}
	return line, nil
}
