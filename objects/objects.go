// Package objects holds the secrets a client needs to reach the service.
//
// # Credential
//
// A Credential is either a username with a password, used once against the
// login endpoint, or a pre-issued API token that skips login:
//
//	cred, err := objects.NewPasswordCredential("admin", "secret")
//	if err != nil {
//		return err
//	}
//	defer cred.Clear()
//
// # SecureString
//
// SecureString keeps sensitive text AES-GCM sealed under a random per-value
// key, so the plaintext only exists in memory while it is being sent:
//
//	ss, err := objects.NewSecureString("secret")
//	if err != nil {
//		return err
//	}
//	defer ss.Clear()
package objects

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ErrCleared is returned when a cleared secret is read.
var ErrCleared = errors.New("secret has been cleared")

// Credential identifies the caller to the service.
type Credential struct {
	UserName string
	Password *SecureString
	// Token is a pre-issued API key. When set, login is skipped.
	Token *SecureString
}

// NewPasswordCredential creates a username/password credential.
func NewPasswordCredential(userName, password string) (*Credential, error) {
	ss, err := NewSecureString(password)
	if err != nil {
		return nil, err
	}
	return &Credential{UserName: userName, Password: ss}, nil
}

// NewTokenCredential creates a credential from an existing API key.
func NewTokenCredential(token string) (*Credential, error) {
	ss, err := NewSecureString(token)
	if err != nil {
		return nil, err
	}
	return &Credential{Token: ss}, nil
}

// IsToken reports whether the credential carries an API key.
func (c *Credential) IsToken() bool {
	return c != nil && c.Token != nil
}

// String never reveals the secret.
func (c *Credential) String() string {
	if c == nil {
		return "<nil>"
	}
	if c.IsToken() {
		return "token(***)"
	}
	return c.UserName + ":***"
}

// Clear wipes both secrets.
func (c *Credential) Clear() {
	if c == nil {
		return
	}
	if c.Password != nil {
		c.Password.Clear()
	}
	if c.Token != nil {
		c.Token.Clear()
	}
}

// SecureString is an encrypted string for sensitive data.
type SecureString struct {
	encrypted []byte
	key       []byte
	cleared   bool
}

// NewSecureString creates a SecureString from plaintext.
func NewSecureString(plaintext string) (*SecureString, error) {
	ss := &SecureString{key: make([]byte, 32)}
	if _, err := io.ReadFull(rand.Reader, ss.key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}

	gcm, err := ss.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ss.encrypted = gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return ss, nil
}

func (s *SecureString) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Decrypt returns the plaintext value.
// The caller should clear the returned slice when done.
func (s *SecureString) Decrypt() ([]byte, error) {
	if s.cleared {
		return nil, ErrCleared
	}

	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(s.encrypted) < nonceSize {
		return nil, io.ErrUnexpectedEOF
	}

	nonce, ciphertext := s.encrypted[:nonceSize], s.encrypted[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// Reveal decrypts and hands the plaintext to fn, wiping the buffer afterwards.
func (s *SecureString) Reveal(fn func(plaintext string) error) error {
	buf, err := s.Decrypt()
	if err != nil {
		return err
	}
	defer Wipe(buf)
	return fn(string(buf))
}

// Cleared reports whether Clear has been called.
func (s *SecureString) Cleared() bool {
	return s.cleared
}

// Clear zeroes the ciphertext and key. Further reads fail with ErrCleared.
func (s *SecureString) Clear() {
	Wipe(s.encrypted)
	Wipe(s.key)
	s.cleared = true
}

// Wipe zeroes b.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
