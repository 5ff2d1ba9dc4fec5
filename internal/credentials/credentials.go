// Package credentials encrypts broker credential blobs at rest. The core
// treats a credential as opaque bytes: write an encrypted blob, read it
// back opaque. Plaintext credentials are never persisted.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the encrypted-blob JSON schema version.
	currentVersion = 1
)

// envelope is the stored format for an encrypted credential blob.
type envelope struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// Vault derives AES keys from a configured passphrase and seals/opens
// credential blobs. Encryption and decryption are synchronous and
// CPU-bound, not suspension points.
type Vault struct {
	passphrase []byte
}

// NewVault creates a Vault for the given passphrase.
func NewVault(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, errors.New("credentials: passphrase must not be empty")
	}
	return &Vault{passphrase: []byte(passphrase)}, nil
}

// Encrypt seals plaintext with PBKDF2-HMAC-SHA256 key derivation and
// AES-256-GCM authenticated encryption, returning the JSON envelope.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("credentials: generating salt: %w", err)
	}

	key := pbkdf2.Key(v.passphrase, salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credentials: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("credentials: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	return json.Marshal(envelope{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
}

// Decrypt opens a blob produced by Encrypt.
func (v *Vault) Decrypt(blob []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("credentials: invalid envelope: %w", err)
	}
	if env.Version != currentVersion {
		return nil, fmt.Errorf("credentials: unsupported envelope version %d", env.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("credentials: invalid salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("credentials: invalid nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("credentials: invalid ciphertext: %w", err)
	}

	key := pbkdf2.Key(v.passphrase, salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credentials: creating GCM: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, errors.New("credentials: nonce length mismatch")
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("credentials: decryption failed (wrong passphrase or corrupt blob)")
	}
	return plaintext, nil
}
