// Package notify delivers outbound account mail. The service depends only on
// the Notifier interface; delivery failures are reported, never retried here
// — resending is the caller's decision.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Message is one outbound notification.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Notifier delivers a message to a recipient. Implementations must respect
// ctx deadlines; the account service bounds every call with a timeout.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Log is the development notifier: it records the send in the log and always
// succeeds.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log-only notifier.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (n *Log) Send(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "outbound notification",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// Recorder captures sent messages for tests and can be forced to fail.
type Recorder struct {
	mu       sync.Mutex
	sent     []Message
	failWith error
}

// NewRecorder creates an empty recording notifier.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes every subsequent Send return err; nil restores success.
func (n *Recorder) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failWith = err
}

func (n *Recorder) Send(ctx context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.sent = append(n.sent, msg)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (n *Recorder) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.sent))
	copy(out, n.sent)
	return out
}
