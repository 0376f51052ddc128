// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/synchro/synchroweb/internal/assets"
	"codeberg.org/synchro/synchroweb/internal/handlers"
	mw "codeberg.org/synchro/synchroweb/internal/middleware"
)

func setupRoutes(e *echo.Echo, app *App) *handlers.Handlers {
	h := handlers.New(handlers.Deps{
		Accounts: app.Accounts,
		Store:    app.Store,
		Blobs:    app.Blobs,
		SSO:      app.SSO,
		Site:     app.Config.Site,
		BaseURL:  app.Config.Server.BaseURL,
	})
	throttled := app.Limiter.Middleware()
	signedIn := mw.RequireSignedIn

	// Static files
	e.GET("/static/*", echo.WrapHandler(http.StripPrefix("/static/", assets.FileServer())))

	// Operations
	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(app.Metrics.Handler()))

	e.GET("/", h.Home)

	// Signup and login
	e.GET("/signup", h.SignupPage)
	e.POST("/signup", h.Signup)
	e.GET("/signup-complete", h.SignupComplete)
	e.GET("/login", h.LoginPage)
	e.POST("/login", h.Login, throttled)
	e.GET("/logout", h.Logout)

	// Help center single sign-on
	e.GET("/zd/login", h.ZendeskLoginPage)
	e.POST("/zd/login", h.ZendeskLogin, throttled)
	e.GET("/zd/logout", h.ZendeskLogout)

	// Verification and recovery
	e.GET("/verify", h.VerifyPage)
	e.POST("/verify", h.Verify)
	e.GET("/verify-complete", h.VerifyComplete)
	e.GET("/resend", h.Resend, signedIn)
	e.GET("/forgot", h.ForgotPage)
	e.POST("/forgot", h.Forgot)
	e.GET("/reset", h.ResetPage)
	e.POST("/reset", h.Reset)

	// Account - signed in only
	e.GET("/account", h.AccountPage, signedIn)
	e.POST("/account", h.UpdateAccount, signedIn)
	e.GET("/changepass", h.ChangePasswordPage, signedIn)
	e.POST("/changepass", h.ChangePassword, signedIn)
	e.GET("/changeemail", h.ChangeEmailPage, signedIn)
	e.POST("/changeemail", h.ChangeEmail, signedIn)
	e.GET("/license", h.LicensePage, signedIn)
	e.POST("/license", h.License, signedIn)

	// CLI and downloads
	e.GET("/getsecret", h.GetSecret, throttled)
	e.GET("/dist/:secret/:filename", h.Dist)

	return h
}
