// Package crypto provides authenticated encryption for content bodies, keyed
// by a per-installation master key held in the OS credential store.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/zalando/go-keyring"
)

const (
	serviceName   = "daybook-app"
	masterKeyName = "master-encryption-key"
	keyLength     = 32
	nonceSize     = 12
)

var (
	// ErrWrongKeyLength is returned when the key stored in the vault is not 32 bytes.
	ErrWrongKeyLength = errors.New("crypto: master key has wrong length")
	// ErrDecryption is returned when ciphertext fails to authenticate or decode.
	ErrDecryption = errors.New("crypto: decryption failed")
)

// Vault performs AES-256-GCM encryption using a master key fetched from, or
// minted into, the OS credential store. It is stateless beyond the cipher
// instance and safe to share across goroutines.
type Vault struct {
	gcm cipher.AEAD
}

// New fetches the master key from the OS keyring, generating and storing a
// fresh one on first run. A keyring error other than "not found", or a key of
// the wrong length, is fatal to construction.
func New() (*Vault, error) {
	key, err := getOrCreateMasterKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: master key unavailable: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: building AEAD: %w", err)
	}
	return &Vault{gcm: gcm}, nil
}

func getOrCreateMasterKey() ([]byte, error) {
	b64, err := keyring.Get(serviceName, masterKeyName)
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(b64)
		if decErr != nil {
			return nil, fmt.Errorf("decoding stored key: %w", decErr)
		}
		if len(key) != keyLength {
			return nil, ErrWrongKeyLength
		}
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}

	key := make([]byte, keyLength)
	if _, rErr := rand.Read(key); rErr != nil {
		return nil, fmt.Errorf("generating key: %w", rErr)
	}
	if sErr := keyring.Set(serviceName, masterKeyName, base64.StdEncoding.EncodeToString(key)); sErr != nil {
		return nil, fmt.Errorf("storing new key: %w", sErr)
	}
	return key, nil
}

// Encrypt authenticates and encrypts plaintext, returning base64(nonce || ciphertext).
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}
	sealed := v.gcm.Seal(nil, nonce, plaintext, nil)
	wire := append(nonce, sealed...)
	return base64.StdEncoding.EncodeToString(wire), nil
}

// EncryptString is a convenience wrapper over Encrypt for UTF-8 text.
func (v *Vault) EncryptString(plaintext string) (string, error) {
	return v.Encrypt([]byte(plaintext))
}

// Decrypt reverses Encrypt. A tampered or truncated ciphertext returns ErrDecryption.
func (v *Vault) Decrypt(ciphertextB64 string) ([]byte, error) {
	wire, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, ErrDecryption
	}
	if len(wire) < nonceSize {
		return nil, ErrDecryption
	}
	nonce, sealed := wire[:nonceSize], wire[nonceSize:]
	plaintext, err := v.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// DecryptString reverses EncryptString. Invalid UTF-8 is reported as ErrDecryption.
func (v *Vault) DecryptString(ciphertextB64 string) (string, error) {
	plaintext, err := v.Decrypt(ciphertextB64)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plaintext) {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}
