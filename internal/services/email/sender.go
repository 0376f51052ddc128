// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"codeberg.org/synchro/synchroweb/internal/config"
)

// Message is one outgoing mail with a plain text and an HTML body.
type Message struct {
	To       string
	From     string
	FromName string
	Subject  string
	Text     string
	HTML     string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// NewSender returns an SMTP sender, or a LogSender when no SMTP host is configured.
func NewSender(cfg *config.SMTPConfig) Sender {
	if cfg.Host == "" {
		slog.Warn("smtp_disabled", "reason", "no smtp host configured, mails are logged")
		return NewLogSender(slog.Default())
	}
	return &SMTPSender{cfg: cfg}
}

// SMTPSender sends mail over SMTP using go-mail.
type SMTPSender struct {
	cfg *config.SMTPConfig
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg *config.SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("SMTP host is required")
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send dials the server and delivers m.
func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	msg, err := buildMsg(m)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

func (s *SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Configure TLS based on config and port
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	return opts
}

func buildMsg(m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if m.FromName != "" {
		if err := msg.FromFormat(m.FromName, m.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(m.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Text)
	if m.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, m.HTML)
	}

	return msg, nil
}

// LogSender writes messages to a logger instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs m.
func (s *LogSender) Send(ctx context.Context, m Message) error {
	s.logger.InfoContext(ctx, "mail_logged", "to", m.To, "subject", m.Subject, "text", m.Text)
	return nil
}
