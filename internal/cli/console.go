package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/flailbot/flailbot/internal/api"
)

// Controller sends player commands to the game server.
type Controller interface {
	EnterGame() error
	Leave() error
	Input(angle float64, throttle bool) error
	Click(shooting bool) error
}

// CLI provides an interactive console over stdin while the client runs.
type CLI struct {
	state    *api.WorldState
	control  Controller
	history  api.History
	shutdown func()

	in  io.Reader
	out io.Writer
}

// NewCLI creates a console. history may be nil when the recorder is off.
func NewCLI(state *api.WorldState, control Controller, history api.History, shutdown func(), in io.Reader, out io.Writer) *CLI {
	return &CLI{
		state:    state,
		control:  control,
		history:  history,
		shutdown: shutdown,
		in:       in,
		out:      out,
	}
}

// Start reads commands until EOF, quit, or ctx is done.
func (c *CLI) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(c.out, "\nflailbot console ready. Type 'help' for available commands.")
	fmt.Fprintln(c.out, "─────────────────────────────────────────────────────")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("CLI: input closed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			quit, err := c.execute(strings.ToLower(parts[0]), parts[1:])
			if err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
			if quit {
				return
			}
		}
	}
}

// execute processes a single console command and reports whether the
// console should exit.
func (c *CLI) execute(cmd string, args []string) (bool, error) {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "entities", "e":
		kind := ""
		if len(args) > 0 {
			kind = args[0]
		}
		RenderEntities(c.out, c.state.Entities(kind))
	case "leaderboard", "lb":
		RenderLeaderboard(c.out, c.state.Leaderboard())
	case "feed":
		return false, c.cmdFeed(args)
	case "enter":
		return false, c.report(c.control.EnterGame(), "Enter game sent")
	case "leave":
		return false, c.report(c.control.Leave(), "Leave sent")
	case "input":
		return false, c.cmdInput(args)
	case "click":
		return false, c.cmdClick(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down flailbot...")
		if c.shutdown != nil {
			c.shutdown()
		}
		return true, nil
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false, nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "\nCommands:")
	fmt.Fprintln(c.out, "  status               Connection summary and current king")
	fmt.Fprintln(c.out, "  entities [kind]      Live entities, optionally one kind (ship, atom, ...)")
	fmt.Fprintln(c.out, "  leaderboard          Last leaderboard")
	fmt.Fprintln(c.out, "  feed [n]             Recorded kill feed")
	fmt.Fprintln(c.out, "  enter | leave        Join or leave the game")
	fmt.Fprintln(c.out, "  input <angle> [on]   Steer, optionally with throttle")
	fmt.Fprintln(c.out, "  click <on|off>       Start or stop shooting")
	fmt.Fprintln(c.out, "  quit                 Shutdown flailbot")
	fmt.Fprintln(c.out)
}

func (c *CLI) printStatus() {
	var king *api.King
	if k, ok := c.state.King(); ok {
		king = &k
	}
	RenderStatus(c.out, c.state.Status(), king)
}

func (c *CLI) cmdFeed(args []string) error {
	if c.history == nil {
		return fmt.Errorf("recorder is disabled")
	}
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}
	feed, err := c.history.RecentFeed(limit)
	if err != nil {
		return err
	}
	RenderFeed(c.out, feed)
	return nil
}

func (c *CLI) cmdInput(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: input <angle> [on|off]")
	}
	angle, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid angle: %s", args[0])
	}
	throttle := false
	if len(args) > 1 {
		throttle, err = parseToggle(args[1])
		if err != nil {
			return err
		}
	}
	return c.report(c.control.Input(angle, throttle), "Input sent")
}

func (c *CLI) cmdClick(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: click <on|off>")
	}
	shooting, err := parseToggle(args[0])
	if err != nil {
		return err
	}
	return c.report(c.control.Click(shooting), "Click sent")
}

func (c *CLI) report(err error, msg string) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, msg)
	return nil
}

func parseToggle(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true", "yes":
		return true, nil
	case "off", "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}
