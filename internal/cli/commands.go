// Package cli implements the interactive console of the sourcequery service
// and the table output shared with the one-shot commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/sourcequery/internal/config"
	"github.com/energizer-project/sourcequery/internal/db"
	"github.com/energizer-project/sourcequery/internal/events"
	"github.com/energizer-project/sourcequery/internal/monitor"
	"github.com/energizer-project/sourcequery/internal/protocol"
)

// Monitor is the part of the monitor the console needs.
type Monitor interface {
	States() []monitor.TargetState
	State(address string) (monitor.TargetState, bool)
	QueryNow(ctx context.Context, address string) (protocol.InfoResult, error)
	AddTarget(t config.Target) bool
}

// History reads recorded snapshots.
type History interface {
	History(ctx context.Context, address string, limit int) ([]db.Snapshot, error)
}

// CLI provides an interactive command-line interface.
type CLI struct {
	monitor  Monitor
	history  History
	eventBus *events.EventBus
	in       io.Reader
	out      io.Writer
}

// NewCLI creates a new CLI handler reading commands from in and writing to out.
// history may be nil.
func NewCLI(mon Monitor, history History, eventBus *events.EventBus, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		monitor:  mon,
		history:  history,
		eventBus: eventBus,
		in:       in,
		out:      out,
	}
}

// Start begins the interactive CLI loop. It returns on EOF, quit or ctx cancellation.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nsourcequery console ready. Type 'help' for available commands.")

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
		fmt.Fprint(c.out, "sourcequery> ")

		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])

		quit, err := c.execute(ctx, cmd, parts[1:])
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		if quit {
			return
		}
	}
}

// execute processes a single CLI command and reports whether the loop should end.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) (bool, error) {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		return false, c.cmdStatus(args)
	case "query", "q":
		return false, c.cmdQuery(ctx, args)
	case "history":
		return false, c.cmdHistory(ctx, args)
	case "add":
		return false, c.cmdAdd(ctx, args)
	case "quit", "exit":
		fmt.Fprintln(c.out, "Shutting down sourcequery...")
		if c.eventBus != nil {
			c.eventBus.Emit(ctx, events.Event{
				Type:   events.EventShutdown,
				Source: "cli",
			})
		}
		return true, nil
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false, nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, `
  status [address]           Show all targets or one target in detail
  query <address>...         Query servers now
  history <address> [n]      Show the last n snapshots (default 20)
  add <address> [name]       Start monitoring a server
  quit                       Stop the service
  help                       Show this help message`)
	fmt.Fprintln(c.out)
}

func (c *CLI) cmdStatus(args []string) error {
	if len(args) == 0 {
		RenderStates(c.out, c.monitor.States())
		return nil
	}

	state, ok := c.monitor.State(args[0])
	if !ok {
		return fmt.Errorf("%s is not monitored", args[0])
	}

	fmt.Fprintf(c.out, "\n  Name:         %s\n", state.Target.Name)
	fmt.Fprintf(c.out, "  Address:      %s\n", state.Target.Address)
	fmt.Fprintf(c.out, "  Status:       %s\n", state.Status)
	fmt.Fprintf(c.out, "  Failures:     %d\n", state.ConsecutiveFailures)
	if !state.LastChecked.IsZero() {
		fmt.Fprintf(c.out, "  Last Checked: %s\n", state.LastChecked.Format(time.RFC3339))
	}
	if !state.LastSeen.IsZero() {
		fmt.Fprintf(c.out, "  Last Seen:    %s\n", state.LastSeen.Format(time.RFC3339))
	}
	if state.LastError != "" {
		fmt.Fprintf(c.out, "  Last Error:   %s\n", state.LastError)
	}
	if info := state.LastInfo; info != nil {
		fmt.Fprintf(c.out, "  Server Name:  %s\n", info.Name)
		fmt.Fprintf(c.out, "  Map:          %s\n", info.Map)
		fmt.Fprintf(c.out, "  Game:         %s\n", info.Game)
		fmt.Fprintf(c.out, "  Players:      %d/%d (%d bots)\n", info.Players, info.MaxPlayers, info.Bots)
		fmt.Fprintf(c.out, "  RTT:          %s\n", formatRTT(state.RTT))
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *CLI) cmdQuery(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: query <address>...")
	}

	rows := make([]QueryRow, 0, len(args))
	for _, addr := range args {
		if err := config.ValidateAddress(addr); err != nil {
			rows = append(rows, QueryRow{Address: addr, Err: err})
			continue
		}
		info, err := c.monitor.QueryNow(ctx, addr)
		rows = append(rows, QueryRow{Address: addr, Info: info, Err: err})
	}

	if len(rows) == 1 && rows[0].Err == nil {
		RenderInfoDetail(c.out, rows[0].Address, rows[0].Info)
		return nil
	}
	RenderQueryResults(c.out, rows)
	return nil
}

func (c *CLI) cmdHistory(ctx context.Context, args []string) error {
	if c.history == nil {
		return fmt.Errorf("history is disabled")
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: history <address> [n]")
	}

	limit := 20
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[1])
		}
		limit = n
	}

	snaps, err := c.history.History(ctx, args[0], limit)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintf(c.out, "No history for %s\n", args[0])
		return nil
	}
	RenderHistory(c.out, snaps)
	return nil
}

func (c *CLI) cmdAdd(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: add <address> [name]")
	}
	if err := config.ValidateAddress(args[0]); err != nil {
		return err
	}

	target := config.Target{Address: args[0]}
	if len(args) > 1 {
		target.Name = strings.Join(args[1:], " ")
	}
	if !c.monitor.AddTarget(target) {
		return fmt.Errorf("%s is already monitored", args[0])
	}
	fmt.Fprintf(c.out, "Monitoring %s\n", args[0])

	if c.eventBus != nil {
		c.eventBus.Emit(ctx, events.Event{
			Type:    events.EventConfigChanged,
			Source:  "cli",
			Payload: events.ConfigChangedPayload{Section: "targets", Key: target.Address, Value: target},
		})
	}
	return nil
}
