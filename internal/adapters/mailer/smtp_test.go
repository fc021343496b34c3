package mailer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/target/cyano-batch/internal/domain/model"
)

func newTestMailer(t *testing.T) *SMTPMailer {
	t.Helper()
	m, err := NewSMTPMailer(SMTPMailerOptions{Host: "smtp.example.com", From: "cyano@example.com"})
	require.NoError(t, err)
	return m
}

func TestNewSMTPMailer(t *testing.T) {
	t.Run("requires host", func(t *testing.T) {
		_, err := NewSMTPMailer(SMTPMailerOptions{From: "a@example.com"})
		require.Error(t, err)
	})

	t.Run("requires sender", func(t *testing.T) {
		_, err := NewSMTPMailer(SMTPMailerOptions{Host: "smtp.example.com"})
		require.Error(t, err)
	})

	t.Run("defaults port by tls mode", func(t *testing.T) {
		m := newTestMailer(t)
		assert.Equal(t, 465, m.opts.Port)

		m, err := NewSMTPMailer(SMTPMailerOptions{Host: "smtp.example.com", From: "a@example.com", StartTLS: true})
		require.NoError(t, err)
		assert.Equal(t, 587, m.opts.Port)
	})
}

func TestBuildMessage(t *testing.T) {
	m := newTestMailer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "sites_results.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600))

	msg, err := m.buildMessage(&model.Email{
		To:          "user@example.com",
		Subject:     "Cyano job complete",
		Body:        "Cyano job is complete",
		Attachments: []string{path},
	})
	require.NoError(t, err)

	require.Len(t, msg.GetTo(), 1)
	assert.Equal(t, "user@example.com", msg.GetTo()[0].Address)
	require.Len(t, msg.GetFrom(), 1)
	assert.Equal(t, "cyano@example.com", msg.GetFrom()[0].Address)
	assert.Equal(t, []string{"Cyano job complete"}, msg.GetGenHeader(mail.HeaderSubject))
	require.Len(t, msg.GetAttachments(), 1)
	assert.Equal(t, "sites_results.csv", msg.GetAttachments()[0].Name)
}

func TestBuildMessage_Errors(t *testing.T) {
	m := newTestMailer(t)

	_, err := m.buildMessage(nil)
	require.Error(t, err)

	_, err = m.buildMessage(&model.Email{Subject: "x"})
	require.Error(t, err)

	_, err = m.buildMessage(&model.Email{To: "not an address"})
	require.Error(t, err)

	_, err = m.buildMessage(&model.Email{
		To:          "user@example.com",
		Attachments: []string{filepath.Join(t.TempDir(), "missing.csv")},
	})
	require.ErrorIs(t, err, os.ErrNotExist)
}
