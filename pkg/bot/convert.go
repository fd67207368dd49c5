package bot

import (
	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/irc"
)

// Families the engine routes under. The drainer owns "sending".
const (
	FamilyReceived = "received"
	FamilySentEcho = "sent-echo"
)

// Convert maps a parsed message to the event the engine dispatches and the
// family it routes under.
//
// Server replies (numerics, server-origin or originless commands) become
// ServerEvents. PRIVMSG and NOTICE bodies framed as CTCP become
// EmbeddedEvents carrying [sender, args...], with NOTICE marking the reply
// direction. Everything else from a user prefix becomes a PeerEvent. Traffic
// echoing our own nick routes under "sent-echo" instead of "received".
func Convert(msg *irc.Message, selfNick string) (event.Event, string) {
	if msg.IsNumeric() || msg.Prefix.IsZero() || msg.Prefix.IsServer() {
		return event.NewServerEvent(msg.Command, msg.Params...), FamilyReceived
	}

	peer := event.Peer{
		Nick: msg.Prefix.Name,
		User: msg.Prefix.User,
		Host: msg.Prefix.Host,
	}

	family := FamilyReceived
	if selfNick != "" && peer.Nick == selfNick {
		family = FamilySentEcho
	}

	if msg.Command == "PRIVMSG" || msg.Command == "NOTICE" {
		if cmd, args, ok := irc.ParseCTCP(msg.Trailing()); ok {
			params := []string{peer.Nick}
			if args != "" {
				params = append(params, args)
			}
			return event.NewEmbeddedEvent(cmd, msg.Command == "NOTICE", params...), family
		}
	}

	return event.NewPeerEvent(msg.Command, peer, msg.Params...), family
}
