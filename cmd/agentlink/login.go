package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/rickgao/agentlink/internal/connection"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var agentName, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and verify the WebSocket session",
		Long: `Log in with agent credentials, store the session token, and confirm the
server accepts it on the WebSocket endpoint. The password is read from
AGENTLINK_PASSWORD or prompted for when --password is not given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if password == "" {
				password = os.Getenv("AGENTLINK_PASSWORD")
			}
			if agentName == "" || password == "" {
				var err error
				agentName, password, err = promptCredentials(agentName, password)
				if err != nil {
					return err
				}
			}

			rt, err := newRuntime(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			result := make(chan connection.CloseEvent, 1)
			connected := make(chan struct{}, 1)
			rt.conn.OnConnect(func() {
				select {
				case connected <- struct{}{}:
				default:
				}
			})
			rt.conn.OnDisconnect(func(ev connection.CloseEvent) {
				select {
				case result <- ev:
				default:
				}
			})

			s, err := rt.flow.Login(ctx, agentName, password)
			if err != nil {
				return err
			}

			wait := rt.cfg.Connection.HandshakeTimeout + time.Second
			select {
			case <-connected:
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (agent %d, persona %q)\n", s.AgentName, s.AgentID, s.Persona)
				return nil
			case ev := <-result:
				if ev.Code == connection.ClosePolicyViolation {
					return errors.New("server rejected the session token")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s; connection closed (%d %s), it will be retried on connect\n",
					s.AgentName, ev.Code, ev.Reason)
				return nil
			case <-time.After(wait):
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s; WebSocket not confirmed within %s\n", s.AgentName, wait)
				return nil
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		},
	}

	cmd.Flags().StringVarP(&agentName, "agent", "a", "", "agent name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "agent password")
	return cmd
}

// promptCredentials asks for whichever credential is missing.
func promptCredentials(agentName, password string) (string, string, error) {
	rl, err := readline.New("")
	if err != nil {
		return "", "", fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	if agentName == "" {
		rl.SetPrompt("agent name: ")
		line, err := rl.Readline()
		if err != nil {
			return "", "", fmt.Errorf("read agent name: %w", err)
		}
		agentName = strings.TrimSpace(line)
	}

	if password == "" {
		pw, err := rl.ReadPassword("password: ")
		if err != nil {
			return "", "", fmt.Errorf("read password: %w", err)
		}
		password = string(pw)
	}

	return agentName, password, nil
}
