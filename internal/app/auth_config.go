package app

import (
	"strings"

	"github.com/atriumhq/atrium/internal/auth"
	"github.com/atriumhq/atrium/internal/invite"
	"github.com/atriumhq/atrium/pkg/mail"
)

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	return auth.SessionConfig{
		TTL:         c.Session.TTL,
		TokenLength: c.Session.TokenLength,
	}
}

// FlowServiceConfig converts the config into FlowService parameters.
func (c AuthConfig) FlowServiceConfig(baseURL string) auth.FlowConfig {
	return auth.FlowConfig{
		EmailVerificationTTL: c.Flow.EmailVerificationTTL,
		TwoFactorTTL:         c.Flow.TwoFactorTTL,
		VerificationBaseURL:  baseURL,
	}
}

// MailerSettings converts the SMTP block into mailer parameters.
func (c EmailConfig) MailerSettings() mail.Settings {
	return mail.Settings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// Parse turns configured "email" or "email:role" entries into gate entries.
// Malformed entries are skipped.
func (c InvitationsConfig) Parse() []invite.Entry {
	entries := make([]invite.Entry, 0, len(c.Entries))
	for _, raw := range c.Entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		email := raw
		role := ""
		if idx := strings.LastIndex(raw, ":"); idx > 0 {
			email = raw[:idx]
			role = raw[idx+1:]
		}
		if !strings.Contains(email, "@") {
			continue
		}

		entries = append(entries, invite.Entry{
			Email: strings.ToLower(strings.TrimSpace(email)),
			Role:  strings.TrimSpace(role),
		})
	}
	return entries
}
