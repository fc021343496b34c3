package config

import (
	"strings"
	"time"
)

// MailConfig contains SMTP relay configuration for job notifications.
// Variable names match the ones the account service already uses.
type MailConfig struct {
	// From is the sender address, also used as the SMTP username.
	From string `env:"EMAIL"`

	// Password may be stored encrypted (see APP_ENCRYPTION_KEY).
	Password string `env:"EMAIL_PASS"`

	Host string `env:"EMAIL_SMTP" envDefault:"smtp.gmail.com"`
	Port int    `env:"EMAIL_PORT" envDefault:"465"`

	// StartTLS switches from implicit TLS (SMTPS) to STARTTLS on a plain port.
	StartTLS bool `env:"EMAIL_STARTTLS" envDefault:"false"`

	Timeout time.Duration `env:"EMAIL_TIMEOUT" envDefault:"30s"`

	Subject string `env:"EMAIL_JOB_SUBJECT" envDefault:"Cyano job complete"`
	Body    string `env:"EMAIL_JOB_BODY"    envDefault:"Cyano job is complete"`
}

// Sanitize normalises mail configuration values.
func (m *MailConfig) Sanitize() {
	m.From = strings.TrimSpace(m.From)
	m.Host = strings.TrimSpace(m.Host)
	if m.Port <= 0 {
		if m.StartTLS {
			m.Port = 587
		} else {
			m.Port = 465
		}
	}
	if m.Timeout <= 0 {
		m.Timeout = 30 * time.Second
	}
	if m.Subject == "" {
		m.Subject = "Cyano job complete"
	}
	if m.Body == "" {
		m.Body = "Cyano job is complete"
	}
}

// IsConfigured reports whether enough settings are present to send mail.
func (m *MailConfig) IsConfigured() bool {
	return m.From != "" && m.Host != ""
}
