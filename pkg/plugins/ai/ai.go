// Package ai answers messages addressed to the bot by calling an
// OpenAI-compatible chat completion endpoint.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sipeed/ircclaw/pkg/event"
	"github.com/sipeed/ircclaw/pkg/logger"
	"github.com/sipeed/ircclaw/pkg/plugin"
)

const (
	defaultBaseURL = "https://api.moonshot.cn/v1"
	defaultModel   = "moonshot-v1-32k"
	defaultTimeout = 30 * time.Second

	maxReplyLines = 5
	maxReplyRunes = 400
)

// Options configures the chat endpoint.
type Options struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
}

// nickHolder is the part of the connection the plugin needs: who the bot
// currently is on the wire.
type nickHolder interface {
	CurrentNick() string
}

// Plugin calls the chat endpoint off the engine loop. The handler snapshots
// the prompt, hands it to a goroutine, and the response comes back through
// the emitter like any other external event.
type Plugin struct {
	opts    Options
	client  *http.Client
	emitter plugin.Emitter
	log     *logger.Logger
}

// New validates the options and applies endpoint defaults.
func New(opts Options) (*Plugin, error) {
	if opts.APIKey == "" {
		return nil, errors.New("ai: api key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Plugin{
		opts:   opts,
		client: &http.Client{},
		log:    logger.Component("plugin.ai"),
	}, nil
}

func (p *Plugin) Name() string { return "ai" }

func (p *Plugin) Subscriptions() map[string]plugin.Handler {
	return map[string]plugin.Handler{
		"received.privmsg": plugin.HandlerFunc(p.handlePrivmsg),
	}
}

func (p *Plugin) SetEmitter(e plugin.Emitter) { p.emitter = e }

func (p *Plugin) SetLogger(l *logger.Logger) { p.log = l }

func (p *Plugin) handlePrivmsg(ev event.Event, q *event.Queue) error {
	pe, ok := ev.(*event.PeerEvent)
	if !ok || len(pe.Params()) < 2 {
		return nil
	}
	conn := ev.Connection()
	holder, ok := conn.(nickHolder)
	if !ok {
		return nil
	}
	self := holder.CurrentNick()
	if self == "" {
		return nil
	}

	target, text := pe.Params()[0], pe.Params()[1]
	prompt, ok := addressedTo(self, text)
	if !ok {
		return nil
	}

	replyTo := target
	if !strings.HasPrefix(target, "#") && !strings.HasPrefix(target, "&") {
		replyTo = pe.Peer().Nick
	}
	if p.emitter == nil {
		return nil
	}

	go p.respond(conn, replyTo, prompt)
	return nil
}

// addressedTo extracts the prompt from "<nick>: prompt" (or "<nick>, ...").
// Nick matching is case-insensitive, as nicks are on the wire.
func addressedTo(nick, text string) (string, bool) {
	if len(text) <= len(nick) || !strings.EqualFold(text[:len(nick)], nick) {
		return "", false
	}
	rest := text[len(nick):]
	if rest[0] != ':' && rest[0] != ',' {
		return "", false
	}
	prompt := strings.TrimSpace(rest[1:])
	return prompt, prompt != ""
}

// respond runs on its own goroutine per prompt.
func (p *Plugin) respond(conn event.Conn, replyTo, prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()

	answer, err := p.chat(ctx, prompt)
	if err != nil {
		p.log.ErrorF("chat request failed", map[string]interface{}{
			"connection": conn.Name(),
			"error":      err.Error(),
		})
		return
	}

	for _, line := range replyLines(answer) {
		p.emitter.Emit(conn, event.NewServerEvent("PRIVMSG", replyTo, line))
	}
}

// replyLines splits an answer into IRC-sized lines, capped so one verbose
// completion cannot flood a channel.
func replyLines(answer string) []string {
	lines := make([]string, 0, maxReplyLines)
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > maxReplyRunes {
			line = string(r[:maxReplyRunes])
		}
		lines = append(lines, line)
		if len(lines) == maxReplyLines {
			break
		}
	}
	return lines
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// chat posts one completion request and returns the first choice.
func (p *Plugin) chat(ctx context.Context, prompt string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if p.opts.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: p.opts.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{Model: p.opts.Model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	url := strings.TrimRight(p.opts.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if resp.StatusCode >= 400 {
		msg := resp.Status
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("chat API error %d: %s", resp.StatusCode, msg)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

var (
	_ plugin.Plugin         = (*Plugin)(nil)
	_ plugin.EmitterCapable = (*Plugin)(nil)
	_ plugin.LoggerCapable  = (*Plugin)(nil)
)
