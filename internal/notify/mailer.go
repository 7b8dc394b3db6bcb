package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// SMTPSender delivers alerts over SMTP. A fresh connection per send keeps it
// stateless; alert volume is far too low for pooling to matter.
type SMTPSender struct {
	c SMTPConfig
}

func NewSMTPSender(c SMTPConfig) *SMTPSender {
	return &SMTPSender{c: c}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	msg := mail.NewMsg()
	if err := msg.From(s.c.From); err != nil {
		return fmt.Errorf("smtp: from address: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return fmt.Errorf("smtp: to address: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Body)

	opts := []mail.Option{mail.WithPort(s.c.Port)}
	if s.c.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.c.User),
			mail.WithPassword(s.c.Pass),
		)
	}

	client, err := mail.NewClient(s.c.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp: client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}

	return nil
}

var _ Sender = (*SMTPSender)(nil)
