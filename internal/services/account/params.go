// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"codeberg.org/synchro/synchroweb/internal/models"
)

// Message IDs for rejected input.
const (
	KeySignupRequired        = "validation_signup_required"
	KeyEmailInvalid          = "validation_email_invalid"
	KeyPasswordRequired      = "validation_password_required"
	KeyPasswordMismatch      = "validation_password_mismatch"
	KeyPasswordTooLong       = "validation_password_too_long"
	KeyEmailChangeRequired   = "validation_email_change_required"
	KeyEmailMismatch         = "validation_email_mismatch"
	KeyVerifyCodeRequired    = "validation_verify_code_required"
	KeyForgotEmailRequired   = "validation_forgot_email_required"
	KeyResetCodeRequired     = "validation_reset_code_required"
	KeyResetPasswordRequired = "validation_reset_password_required"
	KeyNameRequired          = "validation_name_required"
	KeyLicenseNameRequired   = "validation_license_name_required"
)

var errMismatch = errors.New("values do not match")

// passwordLength rejects passwords bcrypt cannot hash. Length counts bytes.
var passwordLength = validation.Length(0, models.MaxPasswordBytes)

func equals(other string) validation.RuleFunc {
	return func(value interface{}) error {
		if s, _ := value.(string); s != other {
			return errMismatch
		}
		return nil
	}
}

// SignupParams holds the data submitted on the signup form.
type SignupParams struct {
	Email        string
	Password     string
	Name         string
	Organization string
}

func (p *SignupParams) normalize() {
	p.Email = strings.TrimSpace(p.Email)
	p.Name = strings.TrimSpace(p.Name)
	p.Organization = strings.TrimSpace(p.Organization)
}

func (p SignupParams) validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required),
		validation.Field(&p.Password, validation.Required),
	); err != nil {
		return invalid(KeySignupRequired, err)
	}
	if err := validation.Validate(p.Email, is.Email); err != nil {
		return invalid(KeyEmailInvalid, err)
	}
	if err := validation.Validate(p.Password, passwordLength); err != nil {
		return invalid(KeyPasswordTooLong, err)
	}
	return nil
}

// ChangePasswordParams holds the data submitted on the change password form.
type ChangePasswordParams struct {
	Current string
	New     string
	Confirm string
}

func (p ChangePasswordParams) validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Current, validation.Required),
		validation.Field(&p.New, validation.Required),
		validation.Field(&p.Confirm, validation.Required),
	); err != nil {
		return invalid(KeyPasswordRequired, err)
	}
	if err := validation.Validate(p.Confirm, validation.By(equals(p.New))); err != nil {
		return invalid(KeyPasswordMismatch, err)
	}
	if err := validation.Validate(p.New, passwordLength); err != nil {
		return invalid(KeyPasswordTooLong, err)
	}
	return nil
}

// ChangeEmailParams holds the data submitted on the change email form.
type ChangeEmailParams struct {
	Email    string
	Confirm  string
	Password string
}

func (p *ChangeEmailParams) normalize() {
	p.Email = strings.TrimSpace(p.Email)
	p.Confirm = strings.TrimSpace(p.Confirm)
}

func (p ChangeEmailParams) validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required),
		validation.Field(&p.Confirm, validation.Required),
		validation.Field(&p.Password, validation.Required),
	); err != nil {
		return invalid(KeyEmailChangeRequired, err)
	}
	if err := validation.Validate(p.Confirm, validation.By(equals(p.Email))); err != nil {
		return invalid(KeyEmailMismatch, err)
	}
	if err := validation.Validate(p.Email, is.Email); err != nil {
		return invalid(KeyEmailInvalid, err)
	}
	return nil
}

// ProfileParams holds the editable profile fields.
type ProfileParams struct {
	Name         string
	Organization string
}

func (p *ProfileParams) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Organization = strings.TrimSpace(p.Organization)
}

func (p ProfileParams) validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
	); err != nil {
		return invalid(KeyNameRequired, err)
	}
	return nil
}

// ResetParams holds the data submitted on the password reset form.
type ResetParams struct {
	Code    string
	New     string
	Confirm string
}

func (p ResetParams) validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Code, validation.Required),
	); err != nil {
		return invalid(KeyResetCodeRequired, err)
	}
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.New, validation.Required),
		validation.Field(&p.Confirm, validation.Required),
	); err != nil {
		return invalid(KeyResetPasswordRequired, err)
	}
	if err := validation.Validate(p.Confirm, validation.By(equals(p.New))); err != nil {
		return invalid(KeyPasswordMismatch, err)
	}
	if err := validation.Validate(p.New, passwordLength); err != nil {
		return invalid(KeyPasswordTooLong, err)
	}
	return nil
}

// LicenseParams holds the data submitted on the license agreement form.
// An empty Version means the current license version.
type LicenseParams struct {
	Name         string
	Title        string
	Organization string
	Version      string
}

func (p *LicenseParams) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Title = strings.TrimSpace(p.Title)
	p.Organization = strings.TrimSpace(p.Organization)
}

func (p LicenseParams) validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
	); err != nil {
		return invalid(KeyLicenseNameRequired, err)
	}
	return nil
}
