// Package mailer delivers notification emails through an SMTP relay.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
)

// SMTPMailerOptions configures an SMTPMailer.
type SMTPMailerOptions struct {
	Host     string // Required
	Port     int
	From     string // Required, also the SMTP username
	Password string
	// StartTLS uses STARTTLS on a plain port instead of implicit TLS.
	StartTLS bool
	Timeout  time.Duration
	Logger   *slog.Logger
}

// SMTPMailer sends messages with PLAIN authentication, one connection per message.
type SMTPMailer struct {
	opts   SMTPMailerOptions
	logger *slog.Logger
}

var _ core.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer validates the options and returns a mailer.
func NewSMTPMailer(opts SMTPMailerOptions) (*SMTPMailer, error) {
	opts.Host = strings.TrimSpace(opts.Host)
	opts.From = strings.TrimSpace(opts.From)
	if opts.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if opts.From == "" {
		return nil, errors.New("sender address is required")
	}
	if opts.Port <= 0 {
		opts.Port = 465
		if opts.StartTLS {
			opts.Port = 587
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPMailer{opts: opts, logger: logger.With("component", "smtp_mailer")}, nil
}

func (m *SMTPMailer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(m.opts.Port),
		mail.WithTimeout(m.opts.Timeout),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.opts.From),
		mail.WithPassword(m.opts.Password),
	}
	if m.opts.StartTLS {
		return append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	return append(opts, mail.WithSSL())
}

// buildMessage renders msg as a go-mail message. Attachments must exist.
func (m *SMTPMailer) buildMessage(msg *model.Email) (*mail.Msg, error) {
	if msg == nil {
		return nil, errors.New("email is required")
	}
	if strings.TrimSpace(msg.To) == "" {
		return nil, errors.New("recipient is required")
	}
	out := mail.NewMsg()
	if err := out.From(m.opts.From); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	for _, path := range msg.Attachments {
		// go-mail skips unreadable files silently; fail loudly instead.
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("attachment %s: %w", filepath.Base(path), err)
		}
		out.AttachFile(path, mail.WithFileName(filepath.Base(path)))
	}
	return out, nil
}

// Send delivers msg, dialing the relay for this message only.
func (m *SMTPMailer) Send(ctx context.Context, msg *model.Email) error {
	out, err := m.buildMessage(msg)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(m.opts.Host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	start := time.Now()
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("send mail via %s:%d: %w", m.opts.Host, m.opts.Port, err)
	}
	m.logger.InfoContext(ctx, "email sent",
		"to", msg.To,
		"attachments", len(msg.Attachments),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
