// Package events carries the NATS plumbing between transcription and
// analysis: an answer finishing transcription triggers analysis, and a
// finished analysis is announced for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectAnswerTranscribed fires when the transcription provider
	// has stored a finished transcript for an answer.
	SubjectAnswerTranscribed = "parlance.answer.transcribed"
	// SubjectAnswerAnalyzed fires after the analysis pipeline has
	// persisted labels and embeddings for an answer.
	SubjectAnswerAnalyzed = "parlance.answer.analyzed"
)

// AnswerTranscribed is the payload on SubjectAnswerTranscribed.
type AnswerTranscribed struct {
	AnswerID  string `json:"answer_id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// AnswerAnalyzed is the payload on SubjectAnswerAnalyzed.
type AnswerAnalyzed struct {
	AnswerID      string `json:"answer_id"`
	SessionID     string `json:"session_id"`
	UserID        string `json:"user_id"`
	SentenceCount int    `json:"sentence_count"`
	FlaggedTotal  int    `json:"flagged_total"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
