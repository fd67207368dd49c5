package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender() (*Sender, *[]string) {
	var lines []string
	s := NewSender(func(line string) error {
		lines = append(lines, line)
		return nil
	})
	return s, &lines
}

func TestSenderWriteMethods(t *testing.T) {
	tests := []struct {
		method string
		params []string
		want   string
	}{
		{"privmsg", []string{"#claw", "hello there"}, "PRIVMSG #claw :hello there\r\n"},
		{"notice", []string{"dent", "psst"}, "NOTICE dent psst\r\n"},
		{"join", []string{"#claw"}, "JOIN #claw\r\n"},
		{"join", []string{"#vault", "hunter2"}, "JOIN #vault hunter2\r\n"},
		{"part", []string{"#claw", "so long"}, "PART #claw :so long\r\n"},
		{"quit", nil, "QUIT\r\n"},
		{"quit", []string{"bye all"}, "QUIT :bye all\r\n"},
		{"nick", []string{"claw_"}, "NICK claw_\r\n"},
		{"user", []string{"claw", "0", "*", "ircclaw bot"}, "USER claw 0 * :ircclaw bot\r\n"},
		{"topic", []string{"#claw", "new topic"}, "TOPIC #claw :new topic\r\n"},
		{"mode", []string{"#claw", "+o", "dent"}, "MODE #claw +o dent\r\n"},
		{"kick", []string{"#claw", "troll", "enough"}, "KICK #claw troll enough\r\n"},
		{"invite", []string{"dent", "#claw"}, "INVITE dent #claw\r\n"},
		{"ping", []string{"irc.example.net"}, "PING irc.example.net\r\n"},
		{"pong", []string{"irc.example.net"}, "PONG irc.example.net\r\n"},
		{"away", nil, "AWAY\r\n"},
		{"away", []string{"gone fishing"}, "AWAY :gone fishing\r\n"},
		{"whois", []string{"dent"}, "WHOIS dent\r\n"},
		{"raw", []string{"CAP REQ :echo-message"}, "CAP REQ :echo-message"},
		{"version", []string{"dent"}, "PRIVMSG dent :\x01VERSION\x01\r\n"},
		{"version_reply", []string{"dent", "ircclaw 1.0"}, "NOTICE dent :\x01VERSION ircclaw 1.0\x01\r\n"},
		{"ping_reply", []string{"dent", "12345"}, "NOTICE dent :\x01PING 12345\x01\r\n"},
		{"time", []string{"dent"}, "PRIVMSG dent :\x01TIME\x01\r\n"},
		{"time_reply", []string{"dent", "Thu Aug 21 2026"}, "NOTICE dent :\x01TIME Thu Aug 21 2026\x01\r\n"},
		{"clientinfo", []string{"dent"}, "PRIVMSG dent :\x01CLIENTINFO\x01\r\n"},
		{"clientinfo_reply", []string{"dent", "VERSION PING TIME"}, "NOTICE dent :\x01CLIENTINFO VERSION PING TIME\x01\r\n"},
		{"source", []string{"dent"}, "PRIVMSG dent :\x01SOURCE\x01\r\n"},
		{"source_reply", []string{"dent", "https://github.com/sipeed/ircclaw"}, "NOTICE dent :\x01SOURCE https://github.com/sipeed/ircclaw\x01\r\n"},
		{"action", []string{"#claw", "waves"}, "PRIVMSG #claw :\x01ACTION waves\x01\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.method+"/"+tt.want, func(t *testing.T) {
			s, lines := newTestSender()
			fn, err := s.Resolve(tt.method)
			require.NoError(t, err)
			require.NoError(t, fn(tt.params...))
			require.Len(t, *lines, 1)
			assert.Equal(t, tt.want, (*lines)[0])
		})
	}
}

func TestSenderArity(t *testing.T) {
	tests := []struct {
		method string
		params []string
	}{
		{"privmsg", []string{"#claw"}},
		{"privmsg", []string{"#claw", "a", "b"}},
		{"nick", nil},
		{"mode", nil},
		{"quit", []string{"a", "b"}},
		{"version_reply", []string{"dent"}},
		{"action", []string{"#claw"}},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			s, lines := newTestSender()
			fn, err := s.Resolve(tt.method)
			require.NoError(t, err)
			err = fn(tt.params...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.method)
			assert.Empty(t, *lines, "nothing written on arity error")
		})
	}
}

func TestSenderUnknownMethod(t *testing.T) {
	s, _ := newTestSender()
	_, err := s.Resolve("frobnicate")
	require.ErrorIs(t, err, ErrUnknownWrite)
	assert.Contains(t, err.Error(), "frobnicate")
}

func TestSenderNames(t *testing.T) {
	s, _ := newTestSender()
	names := s.Names()
	assert.Contains(t, names, "privmsg")
	assert.Contains(t, names, "version_reply")
	assert.Contains(t, names, "raw")
	assert.IsIncreasing(t, names)
}
