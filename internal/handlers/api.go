// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"codeberg.org/synchro/synchroweb/internal/i18n"
	"codeberg.org/synchro/synchroweb/internal/services/account"
	"codeberg.org/synchro/synchroweb/internal/services/blob"
)

// GetSecret returns the CLI credentials for the email and password query
// parameters as JSON.
func (h *Handlers) GetSecret(c echo.Context) error {
	ctx := c.Request().Context()
	email := c.QueryParam("email")
	password := c.QueryParam("password")
	if email == "" || password == "" {
		return c.String(http.StatusUnauthorized, i18n.T(ctx, "secret_auth_missing"))
	}

	creds, err := h.accounts.GetSecret(ctx, email, password)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, creds)
	case errors.Is(err, account.ErrUnauthorized):
		return c.String(http.StatusUnauthorized, i18n.T(ctx, "secret_auth_failed"))
	case errors.Is(err, account.ErrNotVerified):
		return c.String(http.StatusForbidden, i18n.T(ctx, "secret_not_verified"))
	case errors.Is(err, account.ErrLicenseRequired):
		return c.String(http.StatusForbidden, i18n.T(ctx, "secret_license_required"))
	default:
		slog.Error("get_secret_failed", "error", err)
		return c.String(http.StatusUnauthorized, i18n.T(ctx, "secret_auth_error"))
	}
}

// Dist streams a distribution file to the holder of a valid secret.
func (h *Handlers) Dist(c echo.Context) error {
	ctx := c.Request().Context()

	_, err := h.accounts.AuthorizeDownload(ctx, c.Param("secret"))
	switch {
	case err == nil:
	case errors.Is(err, account.ErrNotVerified):
		return c.String(http.StatusForbidden, i18n.T(ctx, "dist_not_verified"))
	case errors.Is(err, account.ErrLicenseRequired):
		return c.String(http.StatusForbidden, i18n.T(ctx, "dist_license_required"))
	case errors.Is(err, account.ErrForbidden):
		return c.String(http.StatusForbidden, i18n.T(ctx, "dist_invalid_token"))
	default:
		slog.Error("dist_authorize_failed", "error", err)
		return c.String(http.StatusInternalServerError, i18n.T(ctx, "error_internal"))
	}

	name := c.Param("filename")
	obj, err := h.blobs.Open(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, blob.ErrNotFound), errors.Is(err, blob.ErrInvalidName):
		return c.String(http.StatusNotFound, i18n.T(ctx, "error_not_found"))
	default:
		slog.Error("dist_open_failed", "file", name, "error", err)
		return c.String(http.StatusInternalServerError, i18n.T(ctx, "error_internal"))
	}
	defer func() { _ = obj.Body.Close() }()

	header := c.Response().Header()
	if obj.ContentLength >= 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(obj.ContentLength, 10))
	}
	if obj.ETag != "" {
		header.Set("ETag", obj.ETag)
	}
	if !obj.LastModified.IsZero() {
		header.Set(echo.HeaderLastModified, obj.LastModified.UTC().Format(http.TimeFormat))
	}
	slog.Info("dist_download", "file", name)
	return c.Stream(http.StatusOK, obj.ContentType, obj.Body)
}
