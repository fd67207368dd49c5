// Package console is the interactive debugging prompt: raw IRC lines typed
// at the prompt go out on the active connection, and live engine activity
// prints above it.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/sipeed/ircclaw/pkg/bot"
	"github.com/sipeed/ircclaw/pkg/logger"
)

const componentConsole = "console"

// Console drives a readline REPL against a running bot.
type Console struct {
	bot    *bot.Bot
	rl     *readline.Instance
	active string
}

// New returns a console bound to b. The first configured connection starts
// active.
func New(b *bot.Bot) *Console {
	c := &Console{bot: b}
	if names := b.ConnectionNames(); len(names) > 0 {
		c.active = names[0]
	}
	return c
}

// Run reads lines until /quit, EOF, or ctx ends. A nil return means the
// user left the console; the caller decides whether that stops the bot.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
		AutoComplete:    c.completer(),
	})
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	c.rl = rl

	var once sync.Once
	closeRL := func() { once.Do(func() { rl.Close() }) }
	defer closeRL()

	// Closing the instance unblocks a pending Readline with io.EOF.
	go func() {
		<-ctx.Done()
		closeRL()
	}()
	go c.printTaps(ctx, rl.Stdout())

	logger.InfoC(componentConsole, "interactive console ready, /help for commands")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				return fmt.Errorf("console: %w", err)
			}
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if c.command(rl.Stdout(), line) {
				return nil
			}
			continue
		}
		c.send(rl.Stdout(), line)
	}
}

const helpText = `/connections      list connections and their state
/use <name>       pick the connection raw lines go to
/quit             leave the console
anything else is written to the active connection verbatim
`

// command handles a /-prefixed input. Returns true when the console should
// exit.
func (c *Console) command(out io.Writer, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/connections":
		c.printConnections(out)
	case "/use":
		if len(fields) < 2 {
			fmt.Fprintln(out, "usage: /use <connection>")
			break
		}
		if _, ok := c.bot.Connection(fields[1]); !ok {
			fmt.Fprintf(out, "unknown connection %q, /connections lists them\n", fields[1])
			break
		}
		c.active = fields[1]
		if c.rl != nil {
			c.rl.SetPrompt(c.prompt())
		}
	case "/help":
		fmt.Fprint(out, helpText)
	default:
		fmt.Fprintf(out, "unknown command %s, /help for commands\n", fields[0])
	}
	return false
}

func (c *Console) printConnections(out io.Writer) {
	for _, st := range c.bot.ConnectionStatuses() {
		marker := " "
		if st.Name == c.active {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-12s %-12s nick=%s channels=%s\n",
			marker, st.Name, st.State, st.Nick, strings.Join(st.Channels, ","))
	}
}

// send writes one raw line on the active connection, bypassing the engine.
func (c *Console) send(out io.Writer, line string) {
	conn, ok := c.bot.Connection(c.active)
	if !ok {
		fmt.Fprintln(out, "no active connection, /use one first")
		return
	}
	if err := conn.WriteLine(line); err != nil {
		fmt.Fprintf(out, "write to %s failed: %v\n", c.active, err)
	}
}

// printTaps mirrors engine activity above the prompt.
func (c *Console) printTaps(ctx context.Context, out io.Writer) {
	tap := c.bot.Bus().Tap("console")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-tap:
			if !ok {
				return
			}
			fmt.Fprintf(out, "%s [%s] %s %s\n",
				ev.At.Format("15:04:05"), ev.Connection, direction(ev.Kind), ev.Line)
		}
	}
}

func direction(kind string) string {
	switch kind {
	case "recv":
		return "<-"
	case "send":
		return "->"
	default:
		return "~>"
	}
}

func (c *Console) prompt() string {
	if c.active == "" {
		return "ircclaw> "
	}
	return c.active + "> "
}

func (c *Console) completer() readline.AutoCompleter {
	names := func(string) []string { return c.bot.ConnectionNames() }
	return readline.NewPrefixCompleter(
		readline.PcItem("/connections"),
		readline.PcItem("/use", readline.PcItemDynamic(names)),
		readline.PcItem("/quit"),
		readline.PcItem("/help"),
	)
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ircclaw_history")
	}
	return filepath.Join(home, ".ircclaw_history")
}
