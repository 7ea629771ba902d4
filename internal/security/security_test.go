package security

import (
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	tok, err := svc.Issue(42, "alice")
	require.NoError(t, err)

	id, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 42, Username: "alice"}, id)
}

func TestTokenRejectsForeignSecretAndExpiry(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)
	other := NewTokenService("other", time.Hour)

	tok, err := other.Issue(1, "bob")
	require.NoError(t, err)
	_, err = svc.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := svc.IssueWithTTL(1, "bob", -time.Minute)
	require.NoError(t, err)
	_, err = svc.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)
	hashed, err := h.Hash("Password1!")
	require.NoError(t, err)

	assert.NoError(t, h.Verify("Password1!", hashed))
	assert.Error(t, h.Verify("wrong", hashed))
}

func TestEncryptorRoundTrip(t *testing.T) {
	e, err := NewEncryptor([]byte("any length secret"))
	require.NoError(t, err)

	enc, err := e.Encrypt("hi")
	require.NoError(t, err)
	assert.NotEqual(t, "hi", enc)

	plain, err := e.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "hi", plain)

	_, err = e.Decrypt("not-a-ciphertext")
	assert.Error(t, err)
}

func TestEncryptorLegacyFernet(t *testing.T) {
	var k fernet.Key
	require.NoError(t, k.Generate())

	tok, err := fernet.EncryptAndSign([]byte("old message"), &k)
	require.NoError(t, err)

	e, err := NewEncryptor([]byte("new secret"), k.Encode())
	require.NoError(t, err)

	plain, err := e.Decrypt(string(tok))
	require.NoError(t, err)
	assert.Equal(t, "old message", plain)
}

func TestNewEncryptorRejectsEmptyKey(t *testing.T) {
	_, err := NewEncryptor(nil)
	assert.Error(t, err)
}
