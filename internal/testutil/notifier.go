// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package testutil

import (
	"context"
	"sync"

	"codeberg.org/synchro/synchroweb/internal/models"
)

// SentMail records one notification.
type SentMail struct {
	BaseURL   string
	AccountID string
	Email     string
	Code      string
}

// Notifier records verification and recovery mails instead of sending them.
// When Err is set every send fails with it.
type Notifier struct {
	mu            sync.Mutex
	Err           error
	Verifications []SentMail
	Recoveries    []SentMail
}

// SendVerification records a verification mail.
func (n *Notifier) SendVerification(_ context.Context, baseURL string, a *models.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Verifications = append(n.Verifications, SentMail{
		BaseURL: baseURL, AccountID: a.ID, Email: a.Email, Code: models.Code(a.VerificationCode),
	})
	return nil
}

// SendRecovery records a recovery mail.
func (n *Notifier) SendRecovery(_ context.Context, baseURL string, a *models.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Recoveries = append(n.Recoveries, SentMail{
		BaseURL: baseURL, AccountID: a.ID, Email: a.Email, Code: models.Code(a.RecoveryCode),
	})
	return nil
}

// LastVerification returns the most recent verification mail.
func (n *Notifier) LastVerification() (SentMail, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Verifications) == 0 {
		return SentMail{}, false
	}
	return n.Verifications[len(n.Verifications)-1], true
}

// LastRecovery returns the most recent recovery mail.
func (n *Notifier) LastRecovery() (SentMail, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Recoveries) == 0 {
		return SentMail{}, false
	}
	return n.Recoveries[len(n.Recoveries)-1], true
}

// Recorder collects lifecycle events as "event/outcome" strings.
type Recorder struct {
	mu     sync.Mutex
	Events []string
}

// AccountEvent records one event.
func (r *Recorder) AccountEvent(event, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, event+"/"+outcome)
}
