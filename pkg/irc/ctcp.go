package irc

import "strings"

// ctcpDelim frames a CTCP exchange inside a PRIVMSG or NOTICE body.
const ctcpDelim = "\x01"

// IsCTCP reports whether a message body is a CTCP exchange.
func IsCTCP(text string) bool {
	return len(text) >= 2 && strings.HasPrefix(text, ctcpDelim) && strings.HasSuffix(text, ctcpDelim)
}

// ParseCTCP splits a CTCP body into its command and argument text. The
// command is uppercased. ok is false when the body is not CTCP-framed.
func ParseCTCP(text string) (command, args string, ok bool) {
	if !IsCTCP(text) {
		return "", "", false
	}
	inner := text[1 : len(text)-1]
	command, args, _ = strings.Cut(inner, " ")
	if command == "" {
		return "", "", false
	}
	return strings.ToUpper(command), args, true
}

// FormatCTCP frames a CTCP command and optional argument text for embedding
// in a PRIVMSG or NOTICE body.
func FormatCTCP(command, args string) string {
	if args == "" {
		return ctcpDelim + strings.ToUpper(command) + ctcpDelim
	}
	return ctcpDelim + strings.ToUpper(command) + " " + args + ctcpDelim
}
