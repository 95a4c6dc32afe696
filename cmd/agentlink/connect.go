package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/agentlink/internal/auth"
	"github.com/rickgao/agentlink/internal/connection"
	"github.com/rickgao/agentlink/internal/console"
)

func newConnectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Resume the stored session and open an interactive console",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			con, err := console.New()
			if err != nil {
				return err
			}
			defer con.Close()

			rt, err := newRuntime(ctx, opts, con.Stdout())
			if err != nil {
				return err
			}
			defer rt.Close()

			return runSession(ctx, rt, con)
		},
	}
}

// runSession resumes the stored session and runs the console, plus the
// metrics server when enabled, until the user quits or the session expires.
func runSession(ctx context.Context, rt *runtime, con *console.Console) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	rt.conn.OnConnect(func() {
		con.PrintEvent("connected")
	})
	rt.conn.OnDisconnect(func(ev connection.CloseEvent) {
		con.PrintEvent("disconnected (%d %s), state %s", ev.Code, ev.Reason, rt.conn.State())
	})
	rt.conn.OnMessage(con.PrintMessage)

	errExpired := errors.New(auth.SessionExpiredMessage)
	rt.flow.OnSessionExpired(func(reason string) {
		con.PrintEvent("%s", reason)
		cancel(errExpired)
	})

	s, err := rt.flow.Resume(ctx)
	if errors.Is(err, auth.ErrNotLoggedIn) {
		return errors.New("no stored session, run `agentlink login` first")
	}
	if err != nil {
		return err
	}
	con.PrintEvent("resuming session for %s (agent %d)", s.AgentName, s.AgentID)

	g, gctx := errgroup.WithContext(ctx)

	if rt.cfg.Metrics.Enabled {
		g.Go(func() error {
			return rt.metrics.Serve(gctx, rt.cfg.Metrics.Port, rt.cfg.Metrics.Path, rt.logger)
		})
	}

	g.Go(func() error {
		defer cancel(nil)
		return con.Run(gctx, rt.conn)
	})

	g.Go(func() error {
		<-gctx.Done()
		rt.conn.Disconnect()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if cause := context.Cause(ctx); errors.Is(cause, errExpired) {
		return fmt.Errorf("session ended: %w", cause)
	}
	return nil
}
