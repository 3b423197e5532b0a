package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"

	"travel-backoffice/config"
	"travel-backoffice/logger"
)

// Email is one outgoing message. It is also the payload of email.send events, so the
// attachment travels base64-encoded.
type Email struct {
	Event          string `json:"event"`
	Recipient      string `json:"recipient"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	Attachment     string `json:"attachment,omitempty"`
	AttachmentName string `json:"attachment_name,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// WithAttachment encodes data as the message attachment.
func (e Email) WithAttachment(name string, data []byte) Email {
	e.AttachmentName = name
	e.Attachment = base64.StdEncoding.EncodeToString(data)
	return e
}

// Mailer delivers an email.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

type dialSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer sends email directly via SMTP.
type SMTPMailer struct {
	from   string
	dialer dialSender
}

// NewSMTPMailer builds a mailer from the SMTP settings. EMAIL_FROM falls back to SMTP_USER.
func NewSMTPMailer(cfg config.Config) (*SMTPMailer, error) {
	from := cfg.EmailFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	if from == "" {
		return nil, fmt.Errorf("email sender not configured (set EMAIL_FROM or SMTP_USER)")
	}
	if cfg.SMTPUser == "" || cfg.SMTPPass == "" {
		return nil, fmt.Errorf("smtp credentials not configured (set SMTP_USER and SMTP_PASS)")
	}
	return &SMTPMailer{
		from:   from,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
	}, nil
}

// Send builds the MIME message and delivers it. gomail has no context support, so ctx is only
// checked before dialing.
func (s *SMTPMailer) Send(ctx context.Context, msg Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Recipient == "" {
		return fmt.Errorf("email recipient is required")
	}

	logger.Info("Sending email via SMTP - Recipient: %s", msg.Recipient)

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.Body)

	if msg.Attachment != "" {
		data, err := base64.StdEncoding.DecodeString(msg.Attachment)
		if err != nil {
			return fmt.Errorf("invalid attachment encoding: %w", err)
		}
		name := msg.AttachmentName
		if name == "" {
			name = "attachment.pdf"
		}
		m.Attach(name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		logger.Error("Failed to send email to %s: %v", msg.Recipient, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.Info("Email successfully sent to: %s", msg.Recipient)
	return nil
}
