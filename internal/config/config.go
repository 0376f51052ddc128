// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Site      SiteConfig
	Store     StoreConfig
	Blob      BlobConfig
	SMTP      SMTPConfig
	Session   SessionConfig
	SSO       SSOConfig
	Policy    PolicyConfig
	Cull      CullConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host           string
	Port           int
	BaseURL        string   // empty derives links from the request, local hosts only
	MaxBodySize    int      // in MB
	TrustedProxies []string // CIDRs or IPs allowed to set X-Forwarded-For
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

// SiteConfig carries the brand shown on pages and in mails.
type SiteConfig struct {
	Name        string
	HomeURL     string // landing page after login from the help center
	SupportHost string // host prefix of the help center
}

type StoreConfig struct {
	Backend       string // sqlite, aztable
	DSN           string
	AzureAccount  string
	AzureKey      string // empty uses the default Azure credential chain
	AzureEndpoint string
	AzureTable    string
}

type BlobConfig struct {
	Backend     string // dir, s3
	Dir         string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string // empty logs mails instead of sending them
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
	Domain     string
}

type SSOConfig struct {
	ZendeskSubdomain string
	ZendeskSharedKey string
}

type PolicyConfig struct {
	RequireVerifiedForSecret bool
	RequireLicenseForSecret  bool
	RequireVerifiedForDist   bool
	RequireLicenseForDist    bool
	LicenseVersion           string
}

type CullConfig struct {
	MaxAge   time.Duration // zero disables culling
	Schedule string
}

type RateLimitConfig struct {
	RPS   float64 // zero disables throttling
	Burst int
}

// SecureCookies reports whether cookies should carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	if c.Server.BaseURL != "" {
		return strings.HasPrefix(c.Server.BaseURL, "https://")
	}
	return !IsLocalhost(c.Server.Host)
}

// IsDev reports whether the server runs on a local development host.
func (c *Config) IsDev() bool {
	return IsLocalhost(c.Server.Host)
}

// Validate rejects settings the server must not start with.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" && !c.IsDev() {
		return errors.New("base-url is required when not serving on a local host")
	}
	if _, err := c.Server.ProxyRanges(); err != nil {
		return err
	}
	return nil
}

// ProxyRanges parses TrustedProxies. A bare IP is a single-address range.
func (s ServerConfig) ProxyRanges() ([]*net.IPNet, error) {
	ranges := make([]*net.IPNet, 0, len(s.TrustedProxies))
	for _, p := range s.TrustedProxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", p)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			ranges = append(ranges, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", p, err)
		}
		ranges = append(ranges, ipNet)
	}
	return ranges, nil
}

func NewFromCLI(cmd *cli.Command) *Config {
	return &Config{
		Server: ServerConfig{
			Host:           cmd.String("host"),
			Port:           int(cmd.Int("port")),
			BaseURL:        strings.TrimSuffix(cmd.String("base-url"), "/"),
			MaxBodySize:    int(cmd.Int("max-body-size")),
			TrustedProxies: cmd.StringSlice("trusted-proxies"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Site: SiteConfig{
			Name:        cmd.String("site-name"),
			HomeURL:     cmd.String("site-home-url"),
			SupportHost: cmd.String("site-support-host"),
		},
		Store: StoreConfig{
			Backend:       cmd.String("store-backend"),
			DSN:           cmd.String("database-dsn"),
			AzureAccount:  cmd.String("azure-storage-account"),
			AzureKey:      cmd.String("azure-storage-key"),
			AzureEndpoint: cmd.String("azure-table-endpoint"),
			AzureTable:    cmd.String("azure-table"),
		},
		Blob: BlobConfig{
			Backend:     cmd.String("blob-backend"),
			Dir:         cmd.String("blob-dir"),
			S3Region:    cmd.String("s3-region"),
			S3Endpoint:  cmd.String("s3-endpoint"),
			S3AccessKey: cmd.String("s3-access-key"),
			S3SecretKey: cmd.String("s3-secret-key"),
			S3Bucket:    cmd.String("s3-bucket"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
			Domain:     cmd.String("session-domain"),
		},
		SSO: SSOConfig{
			ZendeskSubdomain: cmd.String("zendesk-subdomain"),
			ZendeskSharedKey: cmd.String("zendesk-shared-key"),
		},
		Policy: PolicyConfig{
			RequireVerifiedForSecret: cmd.Bool("secret-requires-verified"),
			RequireLicenseForSecret:  cmd.Bool("secret-requires-license"),
			RequireVerifiedForDist:   cmd.Bool("dist-requires-verified"),
			RequireLicenseForDist:    cmd.Bool("dist-requires-license"),
			LicenseVersion:           cmd.String("license-version"),
		},
		Cull: CullConfig{
			MaxAge:   cmd.Duration("cull-max-age"),
			Schedule: cmd.String("cull-schedule"),
		},
		RateLimit: RateLimitConfig{
			RPS:   cmd.Float("ratelimit-rps"),
			Burst: int(cmd.Int("ratelimit-burst")),
		},
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL used in mailed links (derived from the request if empty)",
			Sources: source("BASE_URL", "server.base_url"),
		},
		&cli.StringSliceFlag{
			Name:    "trusted-proxies",
			Usage:   "Proxy CIDRs whose X-Forwarded-For is trusted for client IPs",
			Sources: source("TRUSTED_PROXIES", "server.trusted_proxies"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: source("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
		// Site flags
		&cli.StringFlag{
			Name:    "site-name",
			Value:   "Synchro",
			Usage:   "Brand name shown on pages and in mails",
			Sources: source("SITE_NAME", "site.name"),
		},
		&cli.StringFlag{
			Name:    "site-home-url",
			Value:   "https://synchro.io/",
			Usage:   "Absolute home page URL used after help center logins",
			Sources: source("SITE_HOME_URL", "site.home_url"),
		},
		&cli.StringFlag{
			Name:    "site-support-host",
			Value:   "support.synchro.io",
			Usage:   "Host name of the help center",
			Sources: source("SITE_SUPPORT_HOST", "site.support_host"),
		},
	}

	flags = append(flags, storeFlags()...)
	flags = append(flags, blobFlags()...)
	flags = append(flags, smtpFlags()...)
	flags = append(flags, sessionFlags()...)
	flags = append(flags, policyFlags()...)
	return flags
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "store-backend",
			Value:   "sqlite",
			Usage:   "Account store backend (sqlite, aztable)",
			Sources: source("STORE_BACKEND", "store.backend"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/synchroweb.db",
			Usage:   "SQLite database DSN",
			Sources: source("DATABASE_DSN", "store.dsn"),
		},
		&cli.StringFlag{
			Name:    "azure-storage-account",
			Usage:   "Azure storage account name",
			Sources: source("STORAGE_ACCOUNT", "store.azure_account"),
		},
		&cli.StringFlag{
			Name:    "azure-storage-key",
			Usage:   "Azure storage access key (default credential chain if empty)",
			Sources: source("STORAGE_ACCESS_KEY", "store.azure_key"),
		},
		&cli.StringFlag{
			Name:    "azure-table-endpoint",
			Usage:   "Azure table service URL (derived from the account if empty)",
			Sources: source("AZURE_TABLE_ENDPOINT", "store.azure_endpoint"),
		},
		&cli.StringFlag{
			Name:    "azure-table",
			Value:   "webuser",
			Usage:   "Azure table holding accounts",
			Sources: source("AZURE_TABLE", "store.azure_table"),
		},
	}
}

func blobFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "blob-backend",
			Value:   "dir",
			Usage:   "Distribution file store (dir, s3)",
			Sources: source("BLOB_BACKEND", "blob.backend"),
		},
		&cli.StringFlag{
			Name:    "blob-dir",
			Value:   "./data/dist",
			Usage:   "Directory holding distribution files",
			Sources: source("BLOB_DIR", "blob.dir"),
		},
		&cli.StringFlag{
			Name:    "s3-region",
			Value:   "us-east-1",
			Usage:   "S3 region",
			Sources: source("S3_REGION", "blob.s3_region"),
		},
		&cli.StringFlag{
			Name:    "s3-endpoint",
			Usage:   "S3 endpoint URL for S3 compatible stores",
			Sources: source("S3_ENDPOINT", "blob.s3_endpoint"),
		},
		&cli.StringFlag{
			Name:    "s3-access-key",
			Usage:   "S3 access key ID",
			Sources: source("S3_ACCESS_KEY", "blob.s3_access_key"),
		},
		&cli.StringFlag{
			Name:    "s3-secret-key",
			Usage:   "S3 secret access key",
			Sources: source("S3_SECRET_KEY", "blob.s3_secret_key"),
		},
		&cli.StringFlag{
			Name:    "s3-bucket",
			Value:   "dist",
			Usage:   "S3 bucket holding distribution files",
			Sources: source("S3_BUCKET", "blob.s3_bucket"),
		},
	}
}

func smtpFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (mails are logged if empty)",
			Sources: source("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: source("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: source("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: source("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "noreply@synchro.io",
			Usage:   "Sender address",
			Sources: source("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Synchro Admin",
			Usage:   "Sender display name",
			Sources: source("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: source("SMTP_TLS", "smtp.tls"),
		},
	}
}

func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: source("SESSION_COOKIE_NAME", "session.cookie_name"),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   604800, // 7 days in seconds
			Usage:   "Session max age in seconds",
			Sources: source("SESSION_MAX_AGE", "session.max_age"),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: source("SESSION_HASH_KEY", "session.hash_key"),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: source("SESSION_BLOCK_KEY", "session.block_key"),
		},
		&cli.StringFlag{
			Name:    "session-domain",
			Usage:   "Session cookie domain, set to share the session with the help center",
			Sources: source("SESSION_DOMAIN", "session.domain"),
		},
		// SSO flags
		&cli.StringFlag{
			Name:    "zendesk-subdomain",
			Usage:   "Zendesk subdomain for JWT single sign-on",
			Sources: source("ZENDESK_SUBDOMAIN", "sso.zendesk_subdomain"),
		},
		&cli.StringFlag{
			Name:    "zendesk-shared-key",
			Usage:   "Zendesk JWT shared secret (single sign-on disabled if empty)",
			Sources: source("ZENDESK_SHARED_KEY", "sso.zendesk_shared_key"),
		},
	}
}

func policyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "secret-requires-verified",
			Value:   true,
			Usage:   "Only verified accounts may fetch their CLI secret",
			Sources: source("SECRET_REQUIRES_VERIFIED", "policy.secret_requires_verified"),
		},
		&cli.BoolFlag{
			Name:    "secret-requires-license",
			Value:   true,
			Usage:   "Only accounts that agreed to the license may fetch their CLI secret",
			Sources: source("SECRET_REQUIRES_LICENSE", "policy.secret_requires_license"),
		},
		&cli.BoolFlag{
			Name:    "dist-requires-verified",
			Usage:   "Only verified accounts may download distribution files",
			Sources: source("DIST_REQUIRES_VERIFIED", "policy.dist_requires_verified"),
		},
		&cli.BoolFlag{
			Name:    "dist-requires-license",
			Value:   true,
			Usage:   "Only accounts that agreed to the license may download distribution files",
			Sources: source("DIST_REQUIRES_LICENSE", "policy.dist_requires_license"),
		},
		&cli.StringFlag{
			Name:    "license-version",
			Value:   "1.0",
			Usage:   "Current license version recorded on agreement",
			Sources: source("LICENSE_VERSION", "policy.license_version"),
		},
		// Cull flags
		&cli.DurationFlag{
			Name:    "cull-max-age",
			Value:   7 * 24 * time.Hour,
			Usage:   "Delete accounts left unverified longer than this (0 disables)",
			Sources: source("CULL_MAX_AGE", "cull.max_age"),
		},
		&cli.StringFlag{
			Name:    "cull-schedule",
			Value:   "@daily",
			Usage:   "Cron schedule of the unverified account cull",
			Sources: source("CULL_SCHEDULE", "cull.schedule"),
		},
		// Rate limit flags
		&cli.FloatFlag{
			Name:    "ratelimit-rps",
			Value:   1,
			Usage:   "Credential requests per second allowed per client (0 disables)",
			Sources: source("RATELIMIT_RPS", "ratelimit.rps"),
		},
		&cli.IntFlag{
			Name:    "ratelimit-burst",
			Value:   5,
			Usage:   "Credential request burst per client",
			Sources: source("RATELIMIT_BURST", "ratelimit.burst"),
		},
	}
}
