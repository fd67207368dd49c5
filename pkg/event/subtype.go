package event

import "strings"

// Subtype maps an event to its routing suffix. The dispatcher combines it
// with a family prefix to build the specific routing name
// ("received.privmsg", "sending.embedded.version", ...).
//
//   - EmbeddedEvent: "embedded." plus the lowercased embedded command.
//   - ServerEvent:   the lowercased response code.
//   - anything else: the lowercased command.
func Subtype(ev Event) string {
	switch e := ev.(type) {
	case *EmbeddedEvent:
		return "embedded." + strings.ToLower(e.Embedded())
	case *ServerEvent:
		return strings.ToLower(e.Code())
	default:
		return strings.ToLower(ev.Command())
	}
}
