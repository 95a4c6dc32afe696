// Package console provides the interactive prompt for a live connection.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/rickgao/agentlink/internal/connection"
)

// Sender is the part of the connection client the console drives.
type Sender interface {
	SendMessage(payload any) bool
	State() connection.State
	Attempts() int
}

// Console reads lines from the terminal and sends them over the connection.
type Console struct {
	rl        *readline.Instance
	closeOnce sync.Once
}

// New creates a Console with its own readline instance.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "agent> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{rl: rl}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// PrintMessage writes an inbound message above the prompt.
func (c *Console) PrintMessage(msg connection.Message) {
	fmt.Fprintln(c.rl.Stdout(), formatMessage(msg))
}

// PrintEvent writes a status line above the prompt.
func (c *Console) PrintEvent(format string, args ...any) {
	fmt.Fprintf(c.rl.Stdout(), "* "+format+"\n", args...)
}

// Run reads commands for sender until EOF, /quit, or ctx is cancelled.
func (c *Console) Run(ctx context.Context, sender Sender) error {
	defer c.Close()

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	printHelp(c.rl.Stdout())

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			// EOF or closed
			return nil
		}

		if quit := handleLine(c.rl.Stdout(), sender, line); quit {
			return nil
		}
	}
}

// Close releases the terminal. It is safe to call more than once.
func (c *Console) Close() {
	c.closeOnce.Do(func() {
		c.rl.Close()
	})
}

// handleLine executes one input line and reports whether the console should exit.
func handleLine(out io.Writer, sender Sender, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	if !strings.HasPrefix(input, "/") {
		send(out, sender, input)
		return false
	}

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/help", "/?":
		printHelp(out)

	case "/state":
		fmt.Fprintf(out, "state: %s (reconnect attempts: %d)\n", sender.State(), sender.Attempts())

	case "/json":
		if !json.Valid([]byte(arg)) {
			fmt.Fprintln(out, "invalid JSON")
			return false
		}
		send(out, sender, json.RawMessage(arg))

	case "/quit", "/exit":
		return true

	default:
		fmt.Fprintf(out, "unknown command %s, type /help\n", cmd)
	}

	return false
}

func send(out io.Writer, sender Sender, payload any) {
	if !sender.SendMessage(payload) {
		fmt.Fprintf(out, "not sent: connection is %s\n", sender.State())
	}
}

func formatMessage(msg connection.Message) string {
	ts := msg.ReceivedAt.Format(time.TimeOnly)
	if msg.IsRaw() {
		return fmt.Sprintf("[%s] < %s", ts, msg.Text)
	}

	pretty, err := json.MarshalIndent(msg.Data, "", "  ")
	if err != nil {
		return fmt.Sprintf("[%s] < %s", ts, msg.Text)
	}
	return fmt.Sprintf("[%s] < %s", ts, pretty)
}

func printHelp(out io.Writer) {
	fmt.Fprint(out, `Type a line to send it as text.
Commands:
  /json <object>  send a JSON payload
  /state          show connection state
  /help           show this help
  /quit           disconnect and exit
`)
}
