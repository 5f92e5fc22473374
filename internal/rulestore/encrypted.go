package rulestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// ErrDecrypt is returned when a snapshot cannot be decrypted with the
// configured passphrase
var ErrDecrypt = errors.New("rulestore: snapshot decryption failed")

const payloadVersion = 1

// EncryptionConfig holds the scrypt cost parameters
type EncryptionConfig struct {
	N      int // CPU/memory cost, a power of two
	R      int
	P      int
	KeyLen int // 32 selects AES-256
}

// DefaultEncryptionConfig returns OWASP minimum scrypt parameters
func DefaultEncryptionConfig() EncryptionConfig {
	return EncryptionConfig{N: 32768, R: 8, P: 1, KeyLen: 32}
}

// encryptedPayload is what the wrapped store actually persists
type encryptedPayload struct {
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Encrypted seals snapshots with AES-256-GCM before handing them to the
// wrapped store. Every save derives a fresh key from the passphrase and a
// random salt.
type Encrypted struct {
	inner      Store
	passphrase []byte
	cfg        EncryptionConfig
}

// NewEncrypted wraps inner. The passphrase must not be empty.
func NewEncrypted(inner Store, passphrase string, cfg EncryptionConfig) (*Encrypted, error) {
	if passphrase == "" {
		return nil, errors.New("rulestore: empty passphrase")
	}
	if cfg.KeyLen == 0 {
		cfg = DefaultEncryptionConfig()
	}
	return &Encrypted{inner: inner, passphrase: []byte(passphrase), cfg: cfg}, nil
}

func (e *Encrypted) Load(ctx context.Context) ([]byte, error) {
	raw, err := e.inner.Load(ctx)
	if err != nil || raw == nil {
		return raw, err
	}

	var p encryptedPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Version != payloadVersion {
		return nil, fmt.Errorf("%w: snapshot is not an encrypted payload", ErrDecrypt)
	}
	gcm, err := e.aead(p.Salt)
	if err != nil {
		return nil, err
	}
	if len(p.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce", ErrDecrypt)
	}
	plain, err := gcm.Open(nil, p.Nonce, p.Ciphertext, []byte{p.Version})
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

func (e *Encrypted) Save(ctx context.Context, snapshot []byte) error {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := e.aead(salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	payload, err := json.Marshal(encryptedPayload{
		Version:    payloadVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, snapshot, []byte{payloadVersion}),
	})
	if err != nil {
		return err
	}
	return e.inner.Save(ctx, payload)
}

func (e *Encrypted) Close() error { return e.inner.Close() }

// aead derives the key for salt and builds the GCM cipher
func (e *Encrypted) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(e.passphrase, salt, e.cfg.N, e.cfg.R, e.cfg.P, e.cfg.KeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
