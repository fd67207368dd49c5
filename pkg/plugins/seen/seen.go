// Package seen tracks when each nick was last active and answers
// "!seen <nick>" queries from channel members.
package seen

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/logger"
	"github.com/sipeed/ircclaw/pkg/plugin"
)

const schema = `
CREATE TABLE IF NOT EXISTS seen (
	connection TEXT NOT NULL,
	nick       TEXT NOT NULL,
	action     TEXT NOT NULL,
	target     TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	seen_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (connection, nick)
);
`

// Plugin records nick activity in SQLite and answers lookup queries.
type Plugin struct {
	db  *sql.DB
	log *logger.Logger
	now func() time.Time
}

// New opens (or creates) the database at dbPath and ensures the schema.
func New(dbPath string) (*Plugin, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open seen database: %w", err)
	}
	// All access runs on the engine loop; one connection also keeps an
	// in-memory database coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init seen schema: %w", err)
	}

	logger.InfoCF("plugin.seen", "database ready", map[string]interface{}{
		"path": dbPath,
	})
	return &Plugin{db: db, now: time.Now}, nil
}

func (p *Plugin) Name() string { return "seen" }

func (p *Plugin) SetLogger(l *logger.Logger) { p.log = l }

// Close releases the database handle.
func (p *Plugin) Close() error { return p.db.Close() }

func (p *Plugin) Subscriptions() map[string]plugin.Handler {
	return map[string]plugin.Handler{
		"received.privmsg": plugin.HandlerFunc(p.handlePrivmsg),
		"received.join":    plugin.HandlerFunc(p.handleJoin),
		"received.part":    plugin.HandlerFunc(p.handlePart),
		"received.quit":    plugin.HandlerFunc(p.handleQuit),
	}
}

func (p *Plugin) handlePrivmsg(ev event.Event, q *event.Queue) error {
	pe, ok := ev.(*event.PeerEvent)
	if !ok || len(pe.Params()) < 2 {
		return nil
	}
	target, text := pe.Params()[0], pe.Params()[1]

	if err := p.record(ev.Connection().Name(), pe.Peer().Nick, "saying", target, text); err != nil {
		return err
	}

	if nick, ok := parseQuery(text); ok {
		return p.answer(q, ev.Connection().Name(), pe.Peer().Nick, target, nick)
	}
	return nil
}

func (p *Plugin) handleJoin(ev event.Event, q *event.Queue) error {
	return p.recordSimple(ev, "joining")
}

func (p *Plugin) handlePart(ev event.Event, q *event.Queue) error {
	return p.recordSimple(ev, "parting")
}

// handleQuit records the farewell message as detail; a quit has no channel.
func (p *Plugin) handleQuit(ev event.Event, q *event.Queue) error {
	pe, ok := ev.(*event.PeerEvent)
	if !ok {
		return nil
	}
	reason := ""
	if len(pe.Params()) > 0 {
		reason = pe.Params()[0]
	}
	return p.record(ev.Connection().Name(), pe.Peer().Nick, "quitting", "", reason)
}

func (p *Plugin) recordSimple(ev event.Event, action string) error {
	pe, ok := ev.(*event.PeerEvent)
	if !ok {
		return nil
	}
	target, detail := "", ""
	if len(pe.Params()) > 0 {
		target = pe.Params()[0]
	}
	if len(pe.Params()) > 1 {
		detail = pe.Params()[1]
	}
	return p.record(ev.Connection().Name(), pe.Peer().Nick, action, target, detail)
}

func (p *Plugin) record(connection, nick, action, target, detail string) error {
	_, err := p.db.Exec(`
		INSERT INTO seen (connection, nick, action, target, detail, seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(connection, nick) DO UPDATE SET
			action = excluded.action,
			target = excluded.target,
			detail = excluded.detail,
			seen_at = excluded.seen_at`,
		connection, strings.ToLower(nick), action, target, detail, p.now().UTC())
	if err != nil {
		return fmt.Errorf("record seen: %w", err)
	}
	return nil
}

// parseQuery matches "!seen <nick>".
func parseQuery(text string) (nick string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 || fields[0] != "!seen" {
		return "", false
	}
	return fields[1], true
}

func (p *Plugin) answer(q *event.Queue, connection, asker, target, nick string) error {
	replyTo := target
	if !strings.HasPrefix(target, "#") && !strings.HasPrefix(target, "&") {
		replyTo = asker
	}

	var action, seenTarget, detail string
	var seenAt time.Time
	err := p.db.QueryRow(`
		SELECT action, target, detail, seen_at FROM seen
		WHERE connection = ? AND nick = ?`,
		connection, strings.ToLower(nick)).Scan(&action, &seenTarget, &detail, &seenAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		q.Push(event.NewServerEvent("NOTICE", replyTo, fmt.Sprintf("I have not seen %s.", nick)))
		return nil
	case err != nil:
		return fmt.Errorf("look up %s: %w", nick, err)
	}

	msg := fmt.Sprintf("%s was last seen %s ago %s", nick, humanize(p.now().UTC().Sub(seenAt)), action)
	if seenTarget != "" {
		msg += " in " + seenTarget
	}
	if detail != "" {
		msg += fmt.Sprintf(" (%q)", detail)
	}
	q.Push(event.NewServerEvent("NOTICE", replyTo, msg))
	return nil
}

// humanize renders a duration in its two most significant units.
func humanize(d time.Duration) string {
	if d < time.Second {
		return "moments"
	}
	units := []struct {
		name string
		d    time.Duration
	}{
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
	}

	parts := make([]string, 0, 2)
	for _, u := range units {
		if n := d / u.d; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.name))
			d -= n * u.d
			if len(parts) == 2 {
				break
			}
		}
	}
	return strings.Join(parts, "")
}

var (
	_ plugin.Plugin        = (*Plugin)(nil)
	_ plugin.LoggerCapable = (*Plugin)(nil)
)
