// Package events publishes session lifecycle events to NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rbright/askvoice/internal/config"
	"github.com/rbright/askvoice/internal/failure"
	"github.com/rbright/askvoice/internal/session"
)

const connectTimeout = 2 * time.Second

// Event is the JSON payload of one lifecycle message.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Failure   string    `json:"failure,omitempty"`
	Message   string    `json:"message,omitempty"`
	Chars     int       `json:"chars,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher sends lifecycle events. A nil Publisher drops every event, so
// callers need no enabled check.
type Publisher struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

// Connect dials cfg.NATSURL. An empty URL disables publishing and returns a
// nil Publisher.
func Connect(ctx context.Context, cfg config.EventsConfig, log *slog.Logger) (*Publisher, error) {
	url := strings.TrimSpace(cfg.NATSURL)
	if url == "" {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Subject) == "" {
		return nil, errors.New("events subject is empty")
	}

	timeout := connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	conn, err := nats.Connect(url,
		nats.Name("askvoice"),
		nats.Timeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	if log != nil {
		log.Info("connected to NATS", slog.String("url", url))
	}
	return &Publisher{conn: conn, subject: cfg.Subject, log: log}, nil
}

// Observe implements session.Observer.
func (p *Publisher) Observe(tr session.Transition) {
	if p == nil {
		return
	}
	ev := Event{
		SessionID: tr.SessionID,
		Type:      "transition",
		From:      string(tr.From),
		To:        string(tr.To),
		At:        tr.At,
	}
	if tr.Err != nil {
		ev.Failure = string(failure.KindOf(tr.Err))
		ev.Message = tr.Err.Error()
	}
	p.publish(string(tr.To), ev)
}

// Transcribed reports a dispatch outcome: chars of transcript on success, or
// the failure kind.
func (p *Publisher) Transcribed(sessionID string, transcript string, err error) {
	if p == nil {
		return
	}
	ev := Event{SessionID: sessionID, Type: "transcribed", Chars: len(transcript), At: time.Now()}
	token := "transcribed"
	if err != nil {
		ev.Type = "transcription_failed"
		ev.Failure = string(failure.KindOf(err))
		ev.Message = err.Error()
		token = "transcription_failed"
	}
	p.publish(token, ev)
}

// Close flushes buffered events and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.FlushTimeout(connectTimeout); err != nil && p.log != nil {
		p.log.Warn("flush nats events failed", "error", err.Error())
	}
	p.conn.Close()
}

func (p *Publisher) publish(token string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.warn("marshal event failed", err)
		return
	}
	if err := p.conn.Publish(p.subject+"."+token, payload); err != nil {
		p.warn("publish event failed", err)
	}
}

func (p *Publisher) warn(msg string, err error) {
	if p.log == nil {
		return
	}
	p.log.Warn(msg, "error", err.Error(), "subject", p.subject)
}
