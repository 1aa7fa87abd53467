package notify

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v5"
)

// Mailgun delivers mail through the Mailgun HTTP API.
type Mailgun struct {
	client *mailgun.Client
	domain string
	sender string
}

// NewMailgun creates a Mailgun-backed notifier.
func NewMailgun(apiKey, domain, sender string) *Mailgun {
	return &Mailgun{
		client: mailgun.NewMailgun(apiKey),
		domain: domain,
		sender: sender,
	}
}

func (n *Mailgun) Send(ctx context.Context, msg Message) error {
	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", msg.ToName, msg.To)
	}
	m := mailgun.NewMessage(n.domain, n.sender, msg.Subject, "", to)
	m.SetHTML(msg.Body)

	if _, err := n.client.Send(ctx, m); err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	return nil
}
