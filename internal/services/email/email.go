// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email builds and sends account mails.
package email

import (
	"context"
	"errors"
	"html"
	"net/url"
	"strings"

	"codeberg.org/synchro/synchroweb/internal/config"
	"codeberg.org/synchro/synchroweb/internal/i18n"
	"codeberg.org/synchro/synchroweb/internal/models"
)

// Service composes verification and recovery mails.
type Service struct {
	sender   Sender
	from     string
	fromName string
	site     string
}

// NewService creates a new email service.
func NewService(sender Sender, cfg *config.SMTPConfig, site string) (*Service, error) {
	if cfg.From == "" {
		return nil, errors.New("SMTP from address is required")
	}

	return &Service{
		sender:   sender,
		from:     cfg.From,
		fromName: cfg.FromName,
		site:     site,
	}, nil
}

// SendVerification mails the link that verifies the account's email address.
func (s *Service) SendVerification(ctx context.Context, baseURL string, a *models.Account) error {
	return s.send(ctx, a.Email, "email_verification", link(baseURL, "/verify", models.Code(a.VerificationCode)))
}

// SendRecovery mails the password reset link.
func (s *Service) SendRecovery(ctx context.Context, baseURL string, a *models.Account) error {
	return s.send(ctx, a.Email, "email_recovery", link(baseURL, "/reset", models.Code(a.RecoveryCode)))
}

func link(baseURL, path, code string) string {
	return strings.TrimSuffix(baseURL, "/") + path + "?code=" + url.QueryEscape(code)
}

func (s *Service) send(ctx context.Context, to, kind, link string) error {
	data := map[string]any{"Site": s.site, "Link": link}
	htmlData := map[string]any{"Site": html.EscapeString(s.site), "Link": html.EscapeString(link)}

	return s.sender.Send(ctx, Message{
		To:       to,
		From:     s.from,
		FromName: s.fromName,
		Subject:  i18n.TData(ctx, kind+"_subject", data),
		Text:     i18n.TData(ctx, kind+"_text", data),
		HTML:     i18n.TData(ctx, kind+"_html", htmlData),
	})
}
