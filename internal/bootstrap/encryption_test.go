package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cyano-batch/internal/cryptoutil"
)

func TestCreateEncryptor(t *testing.T) {
	assert.IsType(t, cryptoutil.NoopEncryptor{}, CreateEncryptor("", nil))
	assert.IsType(t, &cryptoutil.AESGCMEncryptor{}, CreateEncryptor("correct horse battery staple", nil))
}

func TestRevealSecret(t *testing.T) {
	enc := CreateEncryptor("correct horse battery staple", nil)
	sealed, err := enc.Encrypt([]byte("smtp-password"))
	require.NoError(t, err)

	assert.Equal(t, "smtp-password", revealSecret(enc, "EMAIL_PASS", sealed, nil))
	assert.Equal(t, "plain-password", revealSecret(enc, "EMAIL_PASS", "plain-password", nil))
	assert.Empty(t, revealSecret(enc, "EMAIL_PASS", "", nil))
}
