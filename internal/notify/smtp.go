package notify

import (
	"context"
	"fmt"
	"strings"

	mail "github.com/wneessen/go-mail"

	"seminarcal/internal/config"
)

// calendarContentType makes mail clients offer "add to calendar" for the
// inline part.
const calendarContentType = `text/calendar; method=REQUEST; charset="UTF-8"`

// SMTPSender delivers assembled messages over SMTP. It is the production
// implementation of Sender; tests inject fakes instead.
type SMTPSender struct {
	cfg config.MailConfig
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return fmt.Errorf("sender address: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return fmt.Errorf("recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	}

	// The calendar document rides along as an inline text/calendar part;
	// Outlook additionally wants the Content-Class header to render the
	// invite instead of a bare attachment.
	if err := m.EmbedReader("invite.ics", strings.NewReader(msg.Calendar),
		mail.WithFileContentType(mail.ContentType(calendarContentType)),
	); err != nil {
		return fmt.Errorf("attach calendar: %w", err)
	}
	m.SetGenHeader(mail.Header("Content-Class"), "urn:content-classes:calendarmessage")

	client, err := s.newClient()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.SMTPPort),
	}

	switch {
	case s.cfg.SSL:
		opts = append(opts, mail.WithSSL())
	case s.cfg.STARTTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.SMTPUser != "" && s.cfg.SMTPPassword != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.SMTPUser),
			mail.WithPassword(s.cfg.SMTPPassword),
		)
	}

	return mail.NewClient(s.cfg.SMTPHost, opts...)
}
