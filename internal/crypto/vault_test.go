package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	keyring.MockInit()
	v, err := New()
	require.NoError(t, err)
	return v
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t)
	cases := []string{"", "hello world", "unicode: héllo 日本語 🎉", "a longer message with\nnewlines\tand\ttabs"}
	for _, s := range cases {
		ct, err := v.EncryptString(s)
		require.NoError(t, err)
		pt, err := v.DecryptString(ct)
		require.NoError(t, err)
		require.Equal(t, s, pt)
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	v := newTestVault(t)
	a, err := v.EncryptString("same plaintext")
	require.NoError(t, err)
	b, err := v.EncryptString("same plaintext")
	require.NoError(t, err)
	require.NotEqual(t, a, b, "two encryptions of the same plaintext must differ (fresh nonce)")
}

func TestTamperedCiphertextFailsToDecrypt(t *testing.T) {
	v := newTestVault(t)
	ct, err := v.EncryptString("sensitive body")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ct)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = v.DecryptString(tampered)
	require.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	v := newTestVault(t)
	_, err := v.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	require.ErrorIs(t, err, ErrDecryption)
}

func TestMasterKeyPersistsAcrossVaultInstances(t *testing.T) {
	keyring.MockInit()
	v1, err := New()
	require.NoError(t, err)
	ct, err := v1.EncryptString("persisted across restarts")
	require.NoError(t, err)

	v2, err := New()
	require.NoError(t, err)
	pt, err := v2.DecryptString(ct)
	require.NoError(t, err)
	require.Equal(t, "persisted across restarts", pt)
}

func TestWrongKeyLengthIsRejected(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set(serviceName, masterKeyName, base64.StdEncoding.EncodeToString([]byte("too-short"))))
	_, err := New()
	require.ErrorIs(t, err, ErrWrongKeyLength)
}
