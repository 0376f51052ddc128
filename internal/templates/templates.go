// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package templates renders the site's pages as templ components.
package templates

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/a-h/templ"
)

//go:embed views/*.html
var viewFS embed.FS

// Form carries submitted or prefilled values back into a page.
type Form struct {
	Email        string
	Name         string
	Organization string
	Title        string
	Code         string
	ShowCode     bool
	Version      string
	LicenseDate  string
	Next         string
}

// view is the data every page template executes with.
type view struct {
	Title     string
	Locale    string
	CSRFToken string
	CSSPath   string
	Chrome    Chrome
	Form      Form
	Status    int
	Message   string
}

var pages = map[string]*template.Template{}

// placeholder funcs are replaced per render with ones bound to the request context.
var placeholderFuncs = template.FuncMap{
	"t":  func(string) string { return "" },
	"td": func(string, ...any) string { return "" },
}

func init() {
	names := []string{
		"home", "signup", "signup_complete", "login", "verify", "verify_complete",
		"forgot", "reset", "account", "changepass", "changeemail", "license", "error",
	}
	for _, name := range names {
		pages[name] = template.Must(template.New(name).Funcs(placeholderFuncs).
			ParseFS(viewFS, "views/base.html", "views/"+name+".html"))
	}
}

func funcs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"t": func(id string) string { return T(ctx, id) },
		"td": func(id string, kv ...any) string {
			data := make(map[string]any, len(kv)/2)
			for i := 0; i+1 < len(kv); i += 2 {
				data[fmt.Sprint(kv[i])] = kv[i+1]
			}
			return TData(ctx, id, data)
		},
	}
}

func page(name, titleKey string, v view) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		base, ok := pages[name]
		if !ok {
			return fmt.Errorf("unknown page %q", name)
		}
		tmpl, err := base.Clone()
		if err != nil {
			return err
		}
		tmpl.Funcs(funcs(ctx))

		v.Title = T(ctx, titleKey)
		v.Locale = Locale(ctx)
		v.CSRFToken = CSRFToken(ctx)
		v.CSSPath = CSSPath(ctx)
		v.Chrome = GetChrome(ctx)
		return tmpl.ExecuteTemplate(w, "base", v)
	})
}

// Home renders the landing page.
func Home() templ.Component {
	return page("home", "page_home", view{})
}

// Signup renders the signup form.
func Signup(f Form) templ.Component {
	return page("signup", "page_signup", view{Form: f})
}

// SignupComplete tells a new user to check their mail.
func SignupComplete() templ.Component {
	return page("signup_complete", "page_signup_complete", view{})
}

// Login renders the login form.
func Login(f Form) templ.Component {
	return page("login", "page_login", view{Form: f})
}

// Verify renders the verification code form.
func Verify(f Form) templ.Component {
	return page("verify", "page_verify", view{Form: f})
}

// VerifyComplete confirms a verified address and offers the remembered page.
func VerifyComplete(next string) templ.Component {
	return page("verify_complete", "page_verify_complete", view{Form: Form{Next: next}})
}

// Forgot renders the password recovery request form.
func Forgot(f Form) templ.Component {
	return page("forgot", "page_forgot", view{Form: f})
}

// Reset renders the new password form. The code field is visible only when
// ShowCode is set; otherwise the code travels as a hidden field.
func Reset(f Form) templ.Component {
	return page("reset", "page_reset", view{Form: f})
}

// Account renders the profile form.
func Account(f Form) templ.Component {
	return page("account", "page_account", view{Form: f})
}

// ChangePassword renders the change password form.
func ChangePassword() templ.Component {
	return page("changepass", "page_changepass", view{})
}

// ChangeEmail renders the change email form.
func ChangeEmail(f Form) templ.Component {
	return page("changeemail", "page_changeemail", view{Form: f})
}

// License renders the license agreement form.
func License(f Form) templ.Component {
	return page("license", "page_license", view{Form: f})
}

// Error renders an error page for an HTTP status.
func Error(status int, message string) templ.Component {
	return page("error", "page_error", view{Status: status, Message: message})
}
