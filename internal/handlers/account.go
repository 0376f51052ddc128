// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/synchro/synchroweb/internal/appcontext"
	"codeberg.org/synchro/synchroweb/internal/models"
	"codeberg.org/synchro/synchroweb/internal/services/account"
	"codeberg.org/synchro/synchroweb/internal/services/session"
	"codeberg.org/synchro/synchroweb/internal/services/sso"
	"codeberg.org/synchro/synchroweb/internal/templates"
)

type signupForm struct {
	Email        string `schema:"email"`
	Password     string `schema:"password"`
	Name         string `schema:"name"`
	Organization string `schema:"organization"`
}

type loginForm struct {
	Email    string `schema:"email"`
	Password string `schema:"password"`
}

type codeForm struct {
	Code string `schema:"code"`
}

type emailForm struct {
	Email string `schema:"email"`
}

type resetForm struct {
	Code         string `schema:"code"`
	NewPassword  string `schema:"newpassword"`
	NewPassword2 string `schema:"newpassword2"`
}

type profileForm struct {
	Name         string `schema:"name"`
	Organization string `schema:"organization"`
}

type changePasswordForm struct {
	Password     string `schema:"password"`
	NewPassword  string `schema:"newpassword"`
	NewPassword2 string `schema:"newpassword2"`
}

type changeEmailForm struct {
	Email    string `schema:"email"`
	Email2   string `schema:"email2"`
	Password string `schema:"password"`
}

type licenseForm struct {
	Name         string `schema:"name"`
	Title        string `schema:"title"`
	Organization string `schema:"organization"`
}

// flashValidation queues the message of a validation error and reports
// whether err was one.
func flashValidation(cc *appcontext.Context, err error) bool {
	key, ok := account.MessageKey(err)
	if ok {
		warn(cc, key)
	}
	return ok
}

// SignupPage renders the signup form.
func (h *Handlers) SignupPage(c echo.Context) error {
	return h.render(c, http.StatusOK, templates.Signup(templates.Form{}))
}

// Signup creates an account and signs it in.
func (h *Handlers) Signup(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	var f signupForm
	if err := decodeForm(c, &f); err != nil {
		return err
	}
	form := templates.Form{Email: f.Email, Name: f.Name, Organization: f.Organization}

	a, err := h.accounts.Signup(c.Request().Context(), h.baseURL(c), account.SignupParams{
		Email:        f.Email,
		Password:     f.Password,
		Name:         f.Name,
		Organization: f.Organization,
	})
	switch {
	case err == nil:
		cc.Session.SetIdentity(a)
		return redirect(c, "/signup-complete")
	case errors.Is(err, account.ErrNotify) && a != nil:
		cc.Session.SetIdentity(a)
		warn(cc, "flash_verification_send_failed")
		return h.render(c, http.StatusOK, templates.Signup(form))
	case flashValidation(cc, err):
	case errors.Is(err, account.ErrConflict):
		warn(cc, "flash_signup_exists")
	default:
		slog.Error("signup_failed", "error", err)
		warn(cc, "flash_signup_failed")
	}
	return h.render(c, http.StatusOK, templates.Signup(form))
}

// SignupComplete asks the new user to check their mail.
func (h *Handlers) SignupComplete(c echo.Context) error {
	return h.render(c, http.StatusOK, templates.SignupComplete())
}

// LoginPage renders the login form, prefilled with a pending loginAs address.
func (h *Handlers) LoginPage(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	return h.render(c, http.StatusOK, templates.Login(templates.Form{Email: cc.Session.TakeLoginAs()}))
}

// Login signs an account in and continues to the remembered page.
func (h *Handlers) Login(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	var f loginForm
	if err := decodeForm(c, &f); err != nil {
		return err
	}

	a, err := h.accounts.Login(c.Request().Context(), f.Email, f.Password)
	if err != nil {
		if errors.Is(err, account.ErrUnauthorized) {
			warn(cc, "flash_login_failed")
		} else {
			slog.Error("login_error", "error", err)
			warn(cc, "flash_login_error")
		}
		return h.render(c, http.StatusOK, templates.Login(templates.Form{Email: f.Email}))
	}

	cc.Session.SetIdentity(a)
	next := nextOr(cc, h.defaultNext(c))
	if h.sso.Enabled() {
		to, err := h.sso.LoginURL(identity(a), h.absolute(c, next))
		if err != nil {
			return err
		}
		return redirect(c, to)
	}
	return redirect(c, next)
}

// Logout clears the identity. With SSO the help center is signed out first.
func (h *Handlers) Logout(c echo.Context) error {
	if h.sso.Enabled() {
		return redirect(c, h.sso.LogoutURL())
	}
	return h.signOut(c)
}

func (h *Handlers) signOut(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	cc.Session.ClearIdentity()
	info(cc, "flash_signed_out")
	return redirect(c, "/")
}

// VerifyPage verifies a code from the link, or shows the code form.
func (h *Handlers) VerifyPage(c echo.Context) error {
	var f codeForm
	if err := decodeForm(c, &f); err != nil {
		return err
	}
	if f.Code == "" {
		return h.render(c, http.StatusOK, templates.Verify(templates.Form{}))
	}
	return h.verify(c, f.Code)
}

// Verify handles the code form.
func (h *Handlers) Verify(c echo.Context) error {
	var f codeForm
	if err := decodeForm(c, &f); err != nil {
		return err
	}
	return h.verify(c, f.Code)
}

func (h *Handlers) verify(c echo.Context, code string) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}

	a, err := h.accounts.Verify(c.Request().Context(), code)
	switch {
	case err == nil:
	case errors.Is(err, account.ErrAlreadyVerified):
		flash(cc, session.LevelInfo, "flash_verify_already", map[string]any{"Email": a.Email})
		return redirect(c, "/")
	case flashValidation(cc, err):
		return h.render(c, http.StatusOK, templates.Verify(templates.Form{Code: code}))
	case errors.Is(err, account.ErrNotFound):
		warn(cc, "flash_verify_unknown_code")
		return h.render(c, http.StatusOK, templates.Verify(templates.Form{Code: code}))
	default:
		slog.Error("verify_failed", "error", err)
		warn(cc, "flash_verify_save_failed")
		return h.render(c, http.StatusOK, templates.Verify(templates.Form{Code: code}))
	}

	switch {
	case !cc.Session.SignedIn():
	case cc.Session.UserID == a.ID:
		cc.Session.SetIdentity(a)
	default:
		info(cc, "flash_verify_other_account")
	}
	return redirect(c, "/verify-complete")
}

// VerifyComplete confirms the verification and offers the remembered page.
func (h *Handlers) VerifyComplete(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	return h.render(c, http.StatusOK, templates.VerifyComplete(cc.Session.NextPage))
}

// Resend mails the verification link of the signed-in account again.
func (h *Handlers) Resend(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}

	a, err := h.accounts.ResendVerification(c.Request().Context(), h.baseURL(c), cc.Session.UserID)
	if a != nil {
		cc.Session.SetIdentity(a)
	}
	switch {
	case err == nil:
		info(cc, "flash_verification_resent")
	case errors.Is(err, account.ErrNotify):
		warn(cc, "flash_verification_send_failed")
	case errors.Is(err, account.ErrNotFound):
		warn(cc, "flash_account_missing")
	default:
		slog.Error("resend_failed", "error", err)
		warn(cc, "flash_account_lookup_failed")
	}
	return redirect(c, back(c))
}

// ForgotPage renders the recovery request form.
func (h *Handlers) ForgotPage(c echo.Context) error {
	return h.render(c, http.StatusOK, templates.Forgot(templates.Form{}))
}

// Forgot issues a recovery code and mails the reset link.
func (h *Handlers) Forgot(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	var f emailForm
	if err := decodeForm(c, &f); err != nil {
		return err
	}

	_, err = h.accounts.ForgotPassword(c.Request().Context(), h.baseURL(c), f.Email)
	switch {
	case err == nil:
		info(cc, "flash_recovery_sent")
		return redirect(c, nextOr(cc, "/"))
	case flashValidation(cc, err):
	case errors.Is(err, account.ErrNotify):
		warn(cc, "flash_recovery_send_failed")
	case errors.Is(err, account.ErrNotFound):
		warn(cc, "flash_forgot_unknown_email")
	default:
		slog.Error("forgot_failed", "error", err)
		warn(cc, "flash_forgot_save_failed")
	}
	return h.render(c, http.StatusOK, templates.Forgot(templates.Form{Email: f.Email}))
}

// ResetPage renders the new password form for a recovery code. A different
// signed-in account is signed out so the reset account can log in after.
func (h *Handlers) ResetPage(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	var f codeForm
	if err := decodeForm(c, &f); err != nil {
		return err
	}

	a, err := h.accounts.CheckRecoveryCode(c.Request().Context(), f.Code)
	switch {
	case err == nil:
	case errors.Is(err, account.ErrInvalidCode):
		if f.Code != "" {
			warn(cc, "flash_reset_invalid_code")
		}
		return h.render(c, http.StatusOK, templates.Reset(templates.Form{Code: f.Code, ShowCode: true}))
	default:
		slog.Error("reset_lookup_failed", "error", err)
		warn(cc, "flash_reset_lookup_failed")
		return h.render(c, http.StatusOK, templates.Reset(templates.Form{Code: f.Code, ShowCode: true}))
	}

	if cc.Session.SignedIn() && cc.Session.UserID != a.ID {
		warn(cc, "flash_reset_code_other_account")
		cc.Session.ClearIdentity()
	}
	cc.Session.LoginAs = a.Email
	return h.render(c, http.StatusOK, templates.Reset(templates.Form{Code: f.Code}))
}

// Reset sets a new password using a recovery code, then asks for a login.
func (h *Handlers) Reset(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	var f resetForm
	if err := decodeForm(c, &f); err != nil {
		return err
	}
	form := templates.Form{Code: f.Code, ShowCode: f.Code == ""}

	a, err := h.accounts.ResetPassword(c.Request().Context(), account.ResetParams{
		Code:    f.Code,
		New:     f.NewPassword,
		Confirm: f.NewPassword2,
	})
	switch {
	case err == nil:
	case flashValidation(cc, err):
		return h.render(c, http.StatusOK, templates.Reset(form))
	case errors.Is(err, account.ErrInvalidCode):
		warn(cc, "flash_reset_invalid_code")
		form.ShowCode = true
		return h.render(c, http.StatusOK, templates.Reset(form))
	default:
		slog.Error("reset_failed", "error", err)
		warn(cc, "flash_reset_save_failed")
		return h.render(c, http.StatusOK, templates.Reset(form))
	}

	if cc.Session.SignedIn() && cc.Session.UserID != a.ID {
		warn(cc, "flash_reset_other_account")
	}
	cc.Session.ClearIdentity()
	cc.Session.LoginAs = a.Email
	info(cc, "flash_reset_success")
	return redirect(c, "/login")
}

// currentAccount loads the signed-in account, queueing a flash on failure.
func (h *Handlers) currentAccount(c echo.Context, cc *appcontext.Context) *models.Account {
	a, err := h.accounts.Account(c.Request().Context(), cc.Session.UserID)
	switch {
	case err == nil:
		cc.Session.SetIdentity(a)
		return a
	case errors.Is(err, account.ErrNotFound):
		warn(cc, "flash_account_missing")
	default:
		slog.Error("account_lookup_failed", "error", err)
		warn(cc, "flash_account_lookup_failed")
	}
	return nil
}

func accountForm(a *models.Account) templates.Form {
	if a == nil {
		return templates.Form{}
	}
	f := templates.Form{
		Email:        a.Email,
		Name:         a.Name,
		Organization: a.Organization,
	}
	if a.LicenseAgreed() {
		f.LicenseDate = a.LicenseAgreedDate.Format("2006-01-02")
		f.Version = models.Code(a.LicenseAgreedVersion)
	}
	return f
}

// AccountPage renders the profile of the signed-in account.
func (h *Handlers) AccountPage(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	return h.render(c, http.StatusOK, templates.Account(accountForm(h.currentAccount(c, cc))))
}

// UpdateAccount saves the profile form.
func (h *Handlers) UpdateAccount(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	var f profileForm
	if err := decodeForm(c, &f); err != nil {
		return err
	}

	a, err := h.accounts.UpdateProfile(c.Request().Context(), cc.Session.UserID, account.ProfileParams{
		Name:         f.Name,
		Organization: f.Organization,
	})
	switch {
	case err == nil:
		cc.Session.SetIdentity(a)
		info(cc, "flash_account_updated")
		return redirect(c, "/account")
	case flashValidation(cc, err):
	case errors.Is(err, account.ErrNotFound):
		warn(cc, "flash_account_missing")
	default:
		slog.Error("account_update_failed", "error", err)
		warn(cc, "flash_account_update_failed")
	}
	form := templates.Form{Email: cc.Session.Email, Name: f.Name, Organization: f.Organization}
	return h.render(c, http.StatusOK, templates.Account(form))
}

// ChangePasswordPage renders the change password form.
func (h *Handlers) ChangePasswordPage(c echo.Context) error {
	return h.render(c, http.StatusOK, templates.ChangePassword())
}

// ChangePassword replaces the password of the signed-in account.
func (h *Handlers) ChangePassword(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	var f changePasswordForm
	if err := decodeForm(c, &f); err != nil {
		return err
	}

	err = h.accounts.ChangePassword(c.Request().Context(), cc.Session.UserID, account.ChangePasswordParams{
		Current: f.Password,
		New:     f.NewPassword,
		Confirm: f.NewPassword2,
	})
	switch {
	case err == nil:
		info(cc, "flash_password_updated")
		return redirect(c, "/")
	case flashValidation(cc, err):
	case errors.Is(err, account.ErrUnauthorized):
		warn(cc, "flash_password_incorrect")
	case errors.Is(err, account.ErrNotFound):
		warn(cc, "flash_account_missing")
	default:
		slog.Error("change_password_failed", "error", err)
		warn(cc, "flash_password_update_failed")
	}
	return h.render(c, http.StatusOK, templates.ChangePassword())
}

// ChangeEmailPage renders the change email form.
func (h *Handlers) ChangeEmailPage(c echo.Context) error {
	return h.render(c, http.StatusOK, templates.ChangeEmail(templates.Form{}))
}

// ChangeEmail moves the signed-in account to a new address.
func (h *Handlers) ChangeEmail(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	var f changeEmailForm
	if err := decodeForm(c, &f); err != nil {
		return err
	}

	a, err := h.accounts.ChangeEmail(c.Request().Context(), h.baseURL(c), cc.Session.UserID, account.ChangeEmailParams{
		Email:    f.Email,
		Confirm:  f.Email2,
		Password: f.Password,
	})
	switch {
	case err == nil:
		cc.Session.SetIdentity(a)
		info(cc, "flash_email_updated")
		return redirect(c, "/")
	case errors.Is(err, account.ErrNotify) && a != nil:
		cc.Session.SetIdentity(a)
		info(cc, "flash_email_updated")
		warn(cc, "flash_verification_send_failed")
		return redirect(c, "/")
	case flashValidation(cc, err):
	case errors.Is(err, account.ErrUnauthorized):
		warn(cc, "flash_password_incorrect")
	case errors.Is(err, account.ErrNoChange):
		warn(cc, "flash_email_unchanged")
	case errors.Is(err, account.ErrConflict):
		warn(cc, "flash_signup_exists")
	case errors.Is(err, account.ErrNotFound):
		warn(cc, "flash_account_missing")
	default:
		slog.Error("change_email_failed", "error", err)
		warn(cc, "flash_email_update_failed")
	}
	return h.render(c, http.StatusOK, templates.ChangeEmail(templates.Form{Email: f.Email}))
}

// LicensePage renders the license agreement form.
func (h *Handlers) LicensePage(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	f := accountForm(h.currentAccount(c, cc))
	if f.LicenseDate == "" {
		f.Version = h.accounts.Policy().LicenseVersion
	}
	return h.render(c, http.StatusOK, templates.License(f))
}

// License records the agreement and continues to the remembered page.
func (h *Handlers) License(c echo.Context) error {
	cc, err := appContext(c)
	if err != nil {
		return err
	}
	var f licenseForm
	if err := decodeForm(c, &f); err != nil {
		return err
	}

	a, err := h.accounts.SetLicenseAgreed(c.Request().Context(), cc.Session.UserID, account.LicenseParams{
		Name:         f.Name,
		Title:        f.Title,
		Organization: f.Organization,
	})
	switch {
	case err == nil:
		cc.Session.SetIdentity(a)
		info(cc, "flash_license_agreed")
		return redirect(c, nextOr(cc, "/"))
	case flashValidation(cc, err):
	case errors.Is(err, account.ErrNotFound):
		warn(cc, "flash_account_missing")
	default:
		slog.Error("license_failed", "error", err)
		warn(cc, "flash_license_save_failed")
	}
	form := templates.Form{
		Name:         f.Name,
		Title:        f.Title,
		Organization: f.Organization,
		Version:      h.accounts.Policy().LicenseVersion,
	}
	return h.render(c, http.StatusOK, templates.License(form))
}

func identity(a *models.Account) sso.Identity {
	return sso.Identity{ID: a.ID, Email: a.Email, Name: a.Name}
}
