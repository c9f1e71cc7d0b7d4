// Package sealer encrypts provider tokens before they are stored.
package sealer

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/anoteng/regnskap/internal/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	version = "v1"
	info    = "regnskap bank token v1"

	developmentSecret = "regnskap-development-only"
)

var (
	ErrSecretMissing = errors.New("token_secret_missing")
	ErrMalformed     = errors.New("sealed_token_malformed")
	ErrOpen          = errors.New("sealed_token_invalid")
)

// Sealer seals with XChaCha20-Poly1305 under a key derived from the
// configured secret. Output is "v1." followed by base64url(nonce|ciphertext).
type Sealer struct {
	aead cipher.AEAD
}

func New(secret string) (*Sealer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretMissing
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Provide refuses to start production without a secret. Other environments
// fall back to a fixed development secret.
func Provide(cfg config.Config, log *zap.Logger) (*Sealer, error) {
	secret := cfg.BankSync.TokenSecret
	if strings.TrimSpace(secret) == "" {
		if cfg.IsProduction() {
			return nil, ErrSecretMissing
		}
		log.Named("banksync.sealer").Warn("SECRET_KEY not set, sealing bank tokens with the development secret")
		secret = developmentSecret
	}
	return New(secret)
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(version))
	return version + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	prefix, payload, ok := strings.Cut(sealed, ".")
	if !ok || prefix != version {
		return "", ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil || len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrMalformed
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(version))
	if err != nil {
		return "", ErrOpen
	}
	return string(plaintext), nil
}

// SealOptional seals a non-empty value and returns nil otherwise.
func (s *Sealer) SealOptional(plaintext string) (*string, error) {
	if plaintext == "" {
		return nil, nil
	}
	sealed, err := s.Seal(plaintext)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}
