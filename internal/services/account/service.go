// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package account implements the account lifecycle: signup, login,
// verification, password and email changes, recovery and license agreement.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"codeberg.org/synchro/synchroweb/internal/models"
	"codeberg.org/synchro/synchroweb/internal/repository"
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Notifier delivers account mails. baseURL is the site origin links point at.
type Notifier interface {
	SendVerification(ctx context.Context, baseURL string, a *models.Account) error
	SendRecovery(ctx context.Context, baseURL string, a *models.Account) error
}

// Recorder observes the outcome of lifecycle operations.
type Recorder interface {
	AccountEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AccountEvent(string, string) {}

// Policy decides which account states may fetch credentials and downloads.
type Policy struct {
	RequireVerifiedForSecret bool
	RequireLicenseForSecret  bool
	RequireVerifiedForDist   bool
	RequireLicenseForDist    bool
	LicenseVersion           string
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		RequireVerifiedForSecret: true,
		RequireLicenseForSecret:  true,
		RequireVerifiedForDist:   false,
		RequireLicenseForDist:    true,
		LicenseVersion:           "1.0",
	}
}

// Credentials is the response of GetSecret.
type Credentials struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRecorder sets the observer of lifecycle outcomes.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service runs lifecycle operations against an account store. It never
// touches sessions; callers decide what to remember about the result.
type Service struct {
	store    repository.AccountStore
	notifier Notifier
	policy   Policy
	recorder Recorder
	now      func() time.Time
}

// NewService creates a lifecycle service.
func NewService(store repository.AccountStore, notifier Notifier, policy Policy, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		policy:   policy,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the configured access policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// Signup creates an unverified account and mails its verification link.
// The account is persisted before the mail goes out; if sending fails the
// account is returned together with an ErrNotify error.
func (s *Service) Signup(ctx context.Context, baseURL string, p SignupParams) (a *models.Account, err error) {
	defer func() { s.observe("signup", err) }()

	p.normalize()
	if err := p.validate(); err != nil {
		return nil, err
	}

	if err := s.ensureEmailFree(ctx, p.Email, ""); err != nil {
		return nil, err
	}

	a, err = s.store.CreateAccount(ctx, models.NewAccount{
		Email:        p.Email,
		Password:     p.Password,
		Name:         p.Name,
		Organization: p.Organization,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("signup_success", "account_id", a.ID, "email", a.Email)

	if err := s.notifier.SendVerification(ctx, baseURL, a); err != nil {
		slog.Error("notify_failed", "kind", "verification", "account_id", a.ID, "error", err)
		return a, notifyFailed(err)
	}
	return a, nil
}

// Account returns the account with id, or ErrNotFound.
func (s *Service) Account(ctx context.Context, id string) (*models.Account, error) {
	return s.get(ctx, id)
}

// Login checks an email and password pair. Unverified accounts may log in.
func (s *Service) Login(ctx context.Context, email, password string) (a *models.Account, err error) {
	defer func() { s.observe("login", err) }()

	a, err = s.authenticate(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	slog.Info("login_success", "account_id", a.ID, "email", a.Email)
	return a, nil
}

// Verify marks the account holding code as verified. The code is kept, so a
// second submission returns the account with ErrAlreadyVerified.
func (s *Service) Verify(ctx context.Context, code string) (a *models.Account, err error) {
	defer func() { s.observe("verify", err) }()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalid(KeyVerifyCodeRequired, nil)
	}

	a, err = s.lookup(ctx, repository.FieldVerificationCode, code)
	if err != nil {
		return nil, err
	}
	if a.Verified {
		slog.Info("verify_already_verified", "account_id", a.ID)
		return a, ErrAlreadyVerified
	}

	a.SetVerified(true)
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save verification: %w", err)
	}

	slog.Info("verify_success", "account_id", a.ID, "email", a.Email)
	return a, nil
}

// ResendVerification mails the existing verification code again, whether or
// not the account is verified already.
func (s *Service) ResendVerification(ctx context.Context, baseURL, accountID string) (a *models.Account, err error) {
	defer func() { s.observe("resend_verification", err) }()

	a, err = s.get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendVerification(ctx, baseURL, a); err != nil {
		slog.Error("notify_failed", "kind", "verification", "account_id", a.ID, "error", err)
		return a, notifyFailed(err)
	}
	return a, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, accountID string, p ChangePasswordParams) (err error) {
	defer func() { s.observe("change_password", err) }()

	if err := p.validate(); err != nil {
		return err
	}

	a, err := s.get(ctx, accountID)
	if err != nil {
		return err
	}
	if !a.CheckPassword(p.Current) {
		slog.Warn("change_password_failed", "account_id", a.ID, "reason", "invalid_password")
		return ErrUnauthorized
	}

	if err := a.SetPassword(p.New); err != nil {
		return err
	}
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("change_password_success", "account_id", a.ID)
	return nil
}

// ChangeEmail moves the account to a new address. The account becomes
// unverified with a fresh code, and a verification mail is sent to the new
// address.
func (s *Service) ChangeEmail(ctx context.Context, baseURL, accountID string, p ChangeEmailParams) (a *models.Account, err error) {
	defer func() { s.observe("change_email", err) }()

	p.normalize()
	if err := p.validate(); err != nil {
		return nil, err
	}

	a, err = s.get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !a.CheckPassword(p.Password) {
		slog.Warn("change_email_failed", "account_id", a.ID, "reason", "invalid_password")
		return nil, ErrUnauthorized
	}
	if p.Email == a.Email {
		return nil, ErrNoChange
	}
	if err := s.ensureEmailFree(ctx, p.Email, a.ID); err != nil {
		return nil, err
	}

	previous := a.Email
	a.Email = p.Email
	a.SetVerified(false)
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to update email: %w", err)
	}

	slog.Info("change_email_success", "account_id", a.ID, "from", previous, "to", a.Email)

	if err := s.notifier.SendVerification(ctx, baseURL, a); err != nil {
		slog.Error("notify_failed", "kind", "verification", "account_id", a.ID, "error", err)
		return a, notifyFailed(err)
	}
	return a, nil
}

// UpdateProfile sets the display name and organization.
func (s *Service) UpdateProfile(ctx context.Context, accountID string, p ProfileParams) (a *models.Account, err error) {
	defer func() { s.observe("update_profile", err) }()

	p.normalize()
	if err := p.validate(); err != nil {
		return nil, err
	}

	a, err = s.get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	a.Name = p.Name
	a.Organization = p.Organization
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return a, nil
}

// ForgotPassword issues a recovery code for the account with email and mails
// the reset link. Any earlier code stops working.
func (s *Service) ForgotPassword(ctx context.Context, baseURL, email string) (a *models.Account, err error) {
	defer func() { s.observe("forgot_password", err) }()

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, invalid(KeyForgotEmailRequired, nil)
	}

	a, err = s.lookup(ctx, repository.FieldEmail, email)
	if err != nil {
		return nil, err
	}

	a.GenerateRecoveryCode(s.now())
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save recovery code: %w", err)
	}

	slog.Info("recovery_issued", "account_id", a.ID)

	if err := s.notifier.SendRecovery(ctx, baseURL, a); err != nil {
		slog.Error("notify_failed", "kind", "recovery", "account_id", a.ID, "error", err)
		return a, notifyFailed(err)
	}
	return a, nil
}

// CheckRecoveryCode returns the account a pending recovery code belongs to.
func (s *Service) CheckRecoveryCode(ctx context.Context, code string) (*models.Account, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCode
	}
	a, err := s.lookup(ctx, repository.FieldRecoveryCode, code)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCode
	}
	return a, err
}

// ResetPassword sets a new password using a recovery code and consumes the code.
func (s *Service) ResetPassword(ctx context.Context, p ResetParams) (a *models.Account, err error) {
	defer func() { s.observe("reset_password", err) }()

	p.Code = strings.TrimSpace(p.Code)
	if err := p.validate(); err != nil {
		return nil, err
	}

	a, err = s.CheckRecoveryCode(ctx, p.Code)
	if err != nil {
		return nil, err
	}

	if err := a.SetPassword(p.New); err != nil {
		return nil, err
	}
	a.ClearRecoveryCode()
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to reset password: %w", err)
	}

	slog.Info("reset_password_success", "account_id", a.ID)
	return a, nil
}

// SetLicenseAgreed records a license agreement. Agreeing again overwrites the
// earlier record.
func (s *Service) SetLicenseAgreed(ctx context.Context, accountID string, p LicenseParams) (a *models.Account, err error) {
	defer func() { s.observe("license_agreed", err) }()

	p.normalize()
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Version == "" {
		p.Version = s.policy.LicenseVersion
	}

	a, err = s.get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	a.AgreeLicense(s.now(), models.LicenseAgreement{
		Name:         p.Name,
		Title:        p.Title,
		Organization: p.Organization,
		Version:      p.Version,
	})
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save license agreement: %w", err)
	}

	slog.Info("license_agreed", "account_id", a.ID, "version", p.Version)
	return a, nil
}

// GetSecret returns the CLI credentials for an email and password pair.
func (s *Service) GetSecret(ctx context.Context, email, password string) (c *Credentials, err error) {
	defer func() { s.observe("get_secret", err) }()

	a, err := s.authenticate(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	if s.policy.RequireVerifiedForSecret && !a.Verified {
		return nil, ErrNotVerified
	}
	if s.policy.RequireLicenseForSecret && !a.LicenseAgreed() {
		return nil, ErrLicenseRequired
	}
	return &Credentials{Email: a.Email, Secret: a.Secret}, nil
}

// AuthorizeDownload returns the account owning secret if it may download
// distribution files.
func (s *Service) AuthorizeDownload(ctx context.Context, secret string) (a *models.Account, err error) {
	defer func() { s.observe("download", err) }()

	if secret == "" {
		return nil, ErrInvalidSecret
	}
	a, err = s.lookup(ctx, repository.FieldSecret, secret)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidSecret
	}
	if err != nil {
		return nil, err
	}
	if s.policy.RequireVerifiedForDist && !a.Verified {
		return nil, ErrNotVerified
	}
	if s.policy.RequireLicenseForDist && !a.LicenseAgreed() {
		return nil, ErrLicenseRequired
	}
	return a, nil
}

func (s *Service) authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}

	a, err := s.lookup(ctx, repository.FieldEmail, email)
	if errors.Is(err, ErrNotFound) {
		// Constant-time: always perform bcrypt comparison to prevent timing attacks
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		slog.Warn("login_failed", "email", email, "reason", "account_not_found")
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	if !a.CheckPassword(password) {
		slog.Warn("login_failed", "email", email, "reason", "invalid_password")
		return nil, ErrUnauthorized
	}
	return a, nil
}

// ensureEmailFree fails with ErrConflict if an account other than ownerID
// uses email. The check and the following write are not atomic.
func (s *Service) ensureEmailFree(ctx context.Context, email, ownerID string) error {
	existing, err := s.lookup(ctx, repository.FieldEmail, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != ownerID:
		return ErrConflict
	}
	return nil
}

func (s *Service) get(ctx context.Context, id string) (*models.Account, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	a, err := s.store.GetAccountByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (s *Service) lookup(ctx context.Context, field repository.Field, value string) (*models.Account, error) {
	a, err := s.store.GetAccountByField(ctx, field, value)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account by %s: %w", field, err)
	}
	return a, nil
}

func (s *Service) observe(event string, err error) {
	s.recorder.AccountEvent(event, Outcome(err))
}

// Outcome classifies err for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrAlreadyVerified):
		return "already_verified"
	case errors.Is(err, ErrNoChange):
		return "no_change"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotify):
		return "notify_failed"
	}
	return "error"
}
