package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rickgao/agentlink/internal/auth"
)

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			err = rt.flow.Logout(cmd.Context())
			if errors.Is(err, auth.ErrNotLoggedIn) {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			if err != nil {
				// The local session is gone even when the backend call failed.
				return fmt.Errorf("session cleared locally: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
