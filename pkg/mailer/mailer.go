/**
 * @description
 * Outbound email delivery for parent-facing notifications. The production
 * implementation sends through the Resend API; Noop is wired when no API key
 * is configured so the service degrades to in-app notifications only.
 *
 * @dependencies
 * - github.com/resend/resend-go/v2: Resend API client.
 */
package mailer

import (
	"context"
	"fmt"
	"log"

	"github.com/resend/resend-go/v2"
)

// Message is a single outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Mailer sends transactional email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ResendMailer delivers mail through the Resend API.
type ResendMailer struct {
	client *resend.Client
	from   string
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	from := msg.From
	if from == "" {
		from = m.from
	}

	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}

	sent, err := m.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		log.Printf("level=error component=mailer msg=\"failed to send email\" to=%s subject=%q error=%v", msg.To, msg.Subject, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Printf("level=info component=mailer msg=\"email sent\" message_id=%s to=%s", sent.Id, msg.To)
	return nil
}

// Noop discards every message. Used when email delivery is not configured.
type Noop struct{}

func (Noop) Send(ctx context.Context, msg Message) error {
	return nil
}
