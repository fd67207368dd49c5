package transport

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sipeed/ircclaw/pkg/dispatch"
	"github.com/sipeed/ircclaw/pkg/irc"
)

// ErrUnknownWrite marks a write-method name with no table entry. The drainer
// treats this as a fatal wiring mismatch.
var ErrUnknownWrite = errors.New("unknown write method")

// Sender is the outbound write table: one named method per protocol command
// and embedded exchange, each taking the event parameters positionally and
// validating its own arity. "ping" sends a server PING; a CTCP PING request
// has no dedicated method and goes out via privmsg or raw.
type Sender struct {
	write func(line string) error
	table map[string]dispatch.WriteFunc
}

// NewSender builds the table around a line writer, normally the flood-
// limited writer of a Connection.
func NewSender(write func(line string) error) *Sender {
	s := &Sender{write: write, table: make(map[string]dispatch.WriteFunc)}

	// Protocol commands.
	s.register("privmsg", 2, 2, func(p []string) string { return line("PRIVMSG", p...) })
	s.register("notice", 2, 2, func(p []string) string { return line("NOTICE", p...) })
	s.register("join", 1, 2, func(p []string) string { return line("JOIN", p...) })
	s.register("part", 1, 2, func(p []string) string { return line("PART", p...) })
	s.register("quit", 0, 1, func(p []string) string { return line("QUIT", p...) })
	s.register("nick", 1, 1, func(p []string) string { return line("NICK", p...) })
	s.register("user", 4, 4, func(p []string) string { return line("USER", p...) })
	s.register("topic", 1, 2, func(p []string) string { return line("TOPIC", p...) })
	s.register("mode", 1, -1, func(p []string) string { return line("MODE", p...) })
	s.register("kick", 2, 3, func(p []string) string { return line("KICK", p...) })
	s.register("invite", 2, 2, func(p []string) string { return line("INVITE", p...) })
	s.register("ping", 1, 1, func(p []string) string { return line("PING", p...) })
	s.register("pong", 1, 2, func(p []string) string { return line("PONG", p...) })
	s.register("away", 0, 1, func(p []string) string { return line("AWAY", p...) })
	s.register("whois", 1, 2, func(p []string) string { return line("WHOIS", p...) })
	s.register("raw", 1, 1, func(p []string) string { return p[0] })

	// Embedded exchanges. Requests ride in PRIVMSG, replies in NOTICE.
	s.register("version", 1, 1, ctcpRequest("VERSION", false))
	s.register("version_reply", 2, 2, ctcpReply("VERSION"))
	s.register("ping_reply", 2, 2, ctcpReply("PING"))
	s.register("time", 1, 1, ctcpRequest("TIME", false))
	s.register("time_reply", 2, 2, ctcpReply("TIME"))
	s.register("clientinfo", 1, 1, ctcpRequest("CLIENTINFO", false))
	s.register("clientinfo_reply", 2, 2, ctcpReply("CLIENTINFO"))
	s.register("source", 1, 1, ctcpRequest("SOURCE", false))
	s.register("source_reply", 2, 2, ctcpReply("SOURCE"))
	s.register("action", 2, 2, ctcpRequest("ACTION", true))

	return s
}

func line(cmd string, params ...string) string {
	return (&irc.Message{Command: cmd, Params: params}).Render()
}

// ctcpRequest builds a PRIVMSG-carried CTCP request: p[0] is the target,
// p[1] (when withArg) the argument text.
func ctcpRequest(cmd string, withArg bool) func(p []string) string {
	return func(p []string) string {
		args := ""
		if withArg {
			args = p[1]
		}
		return line("PRIVMSG", p[0], irc.FormatCTCP(cmd, args))
	}
}

// ctcpReply builds a NOTICE-carried CTCP reply: p[0] target, p[1] text.
func ctcpReply(cmd string) func(p []string) string {
	return func(p []string) string {
		return line("NOTICE", p[0], irc.FormatCTCP(cmd, p[1]))
	}
}

func (s *Sender) register(name string, min, max int, build func(p []string) string) {
	s.table[name] = func(params ...string) error {
		if len(params) < min || (max >= 0 && len(params) > max) {
			switch {
			case max == min:
				return fmt.Errorf("%s: expects %d params, got %d", name, min, len(params))
			case max < 0:
				return fmt.Errorf("%s: expects at least %d params, got %d", name, min, len(params))
			default:
				return fmt.Errorf("%s: expects %d to %d params, got %d", name, min, max, len(params))
			}
		}
		return s.write(build(params))
	}
}

// Resolve returns the write method registered under name.
func (s *Sender) Resolve(name string) (dispatch.WriteFunc, error) {
	fn, ok := s.table[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWrite, name)
	}
	return fn, nil
}

// Names returns every registered write-method name, sorted.
func (s *Sender) Names() []string {
	names := make([]string, 0, len(s.table))
	for name := range s.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
