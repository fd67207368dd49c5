// Package irc implements the subset of the IRC client protocol wire format
// that ircclaw speaks: message parsing and rendering per RFC 1459/2812 with
// IRCv3 message tags, plus CTCP framing helpers.
package irc

import (
	"errors"
	"strings"
)

// ErrEmptyMessage is returned when a line contains nothing to parse.
var ErrEmptyMessage = errors.New("irc: empty message")

// ErrMissingCommand is returned when a line has a prefix but no command.
var ErrMissingCommand = errors.New("irc: missing command")

// MaxLineLen is the classic wire limit including the trailing CRLF.
const MaxLineLen = 512

// Prefix is the optional origin of a message: either a server name or a
// nick!user@host user mask. For a server origin only Name is set.
type Prefix struct {
	Name string // nick or server name
	User string
	Host string
}

// IsServer reports whether the prefix denotes a server rather than a user.
// Servers never carry user/host parts and conventionally contain a dot.
func (p Prefix) IsServer() bool {
	return p.User == "" && p.Host == "" && strings.Contains(p.Name, ".")
}

// IsZero reports whether the message had no prefix at all.
func (p Prefix) IsZero() bool {
	return p.Name == "" && p.User == "" && p.Host == ""
}

// String renders the prefix in wire form without the leading colon.
func (p Prefix) String() string {
	var b strings.Builder
	b.WriteString(p.Name)
	if p.User != "" {
		b.WriteByte('!')
		b.WriteString(p.User)
	}
	if p.Host != "" {
		b.WriteByte('@')
		b.WriteString(p.Host)
	}
	return b.String()
}

// Message is one parsed IRC line.
type Message struct {
	Tags    map[string]string
	Prefix  Prefix
	Command string
	Params  []string // trailing parameter, if any, is the last element
}

// Trailing returns the final parameter, or "" when there are no parameters.
// For PRIVMSG and NOTICE this is the message text.
func (m *Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// IsNumeric reports whether the command is a three-digit server reply code.
func (m *Message) IsNumeric() bool {
	if len(m.Command) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if m.Command[i] < '0' || m.Command[i] > '9' {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParseMessage parses a single IRC line. The line may carry a trailing CR,
// LF, or CRLF, which is stripped. Commands are uppercased so callers can
// match without normalizing.
func ParseMessage(line string) (*Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyMessage
	}

	msg := &Message{}

	// IRCv3 tags: @key=value;key2=value2 <rest>
	if strings.HasPrefix(line, "@") {
		rawTags, rest, ok := strings.Cut(line[1:], " ")
		if !ok {
			return nil, ErrMissingCommand
		}
		msg.Tags = parseTags(rawTags)
		line = strings.TrimLeft(rest, " ")
	}

	// Prefix: :origin <rest>
	if strings.HasPrefix(line, ":") {
		rawPrefix, rest, ok := strings.Cut(line[1:], " ")
		if !ok {
			return nil, ErrMissingCommand
		}
		msg.Prefix = parsePrefix(rawPrefix)
		line = strings.TrimLeft(rest, " ")
	}

	if line == "" {
		return nil, ErrMissingCommand
	}

	// Command and parameters. A parameter starting with ':' swallows the
	// remainder of the line as the trailing parameter.
	if cmd, rest, ok := strings.Cut(line, " "); ok {
		msg.Command = strings.ToUpper(cmd)
		line = rest
		for line != "" {
			line = strings.TrimLeft(line, " ")
			if line == "" {
				break
			}
			if strings.HasPrefix(line, ":") {
				msg.Params = append(msg.Params, line[1:])
				break
			}
			param, rest, _ := strings.Cut(line, " ")
			msg.Params = append(msg.Params, param)
			line = rest
		}
	} else {
		msg.Command = strings.ToUpper(line)
	}

	return msg, nil
}

func parsePrefix(raw string) Prefix {
	var p Prefix
	rest := raw
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		p.Host = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '!'); i >= 0 {
		p.User = rest[i+1:]
		rest = rest[:i]
	}
	p.Name = rest
	return p
}

func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		tags[key] = unescapeTagValue(value)
	}
	return tags
}

// Tag value escapes per the IRCv3 message-tags spec.
func unescapeTagValue(v string) string {
	if !strings.ContainsRune(v, '\\') {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i+1 == len(v) {
			if v[i] != '\\' {
				b.WriteByte(v[i])
			}
			continue
		}
		i++
		switch v[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// Render produces the wire form of the message terminated with CRLF. The
// trailing parameter is prefixed with ':' when it is empty, contains a
// space, or itself starts with ':'.
func (m *Message) Render() string {
	var b strings.Builder
	if !m.Prefix.IsZero() {
		b.WriteByte(':')
		b.WriteString(m.Prefix.String())
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)
	for i, param := range m.Params {
		b.WriteByte(' ')
		if i == len(m.Params)-1 && needsTrailing(param) {
			b.WriteByte(':')
		}
		b.WriteString(param)
	}
	b.WriteString("\r\n")
	return b.String()
}

// CTCP bodies always go out as a trailing parameter, colon and all, the way
// every client renders them.
func needsTrailing(param string) bool {
	return param == "" ||
		strings.ContainsRune(param, ' ') ||
		strings.HasPrefix(param, ":") ||
		strings.HasPrefix(param, ctcpDelim)
}
