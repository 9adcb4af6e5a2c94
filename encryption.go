package iotanomaly

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// EncryptionNonceSize is the nonce size for AES-GCM
	EncryptionNonceSize = 12
	// EncryptionSaltSize is the salt size for key derivation
	EncryptionSaltSize = 32
	// EncryptionKeySize is the AES-256 key size
	EncryptionKeySize = 32
	// PBKDF2Iterations is the number of iterations for key derivation
	PBKDF2Iterations = 100000
)

// EncryptionConfig configures encryption of stored runs.
type EncryptionConfig struct {
	// Enabled turns on encryption for run blobs
	Enabled bool `yaml:"enabled"`
	// Key is the raw encryption key (must be 32 bytes for AES-256).
	// If empty, KeyPassword is used to derive a key.
	Key []byte `yaml:"-"`
	// KeyPassword is used to derive the encryption key via PBKDF2
	KeyPassword string `yaml:"key_password"`
}

// MagicEncrypted prefixes every encrypted blob.
var MagicEncrypted = [4]byte{'I', 'E', 'N', 'C'}

// EncryptedHeaderSize is the size of the magic, version and salt header.
const EncryptedHeaderSize = 4 + 1 + EncryptionSaltSize

// Encryptor seals run blobs with AES-256-GCM.
//
// A blob is laid out as magic, version, salt, nonce, ciphertext. The salt is the one
// the key was derived with, so blobs written under an earlier salt can still be opened
// with the same password.
type Encryptor struct {
	gcm      cipher.AEAD
	salt     []byte
	password string

	mu      sync.Mutex
	derived map[string]cipher.AEAD
}

// NewEncryptor creates a new encryptor from a key or password.
// It returns nil without error when encryption is disabled.
func NewEncryptor(cfg EncryptionConfig) (*Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch {
	case len(cfg.Key) > 0:
		return NewEncryptorWithKey(cfg.Key)
	case cfg.KeyPassword != "":
		salt := make([]byte, EncryptionSaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		return NewEncryptorWithSalt(cfg.KeyPassword, salt)
	}
	return nil, errors.New("encryption enabled but no key or password provided")
}

// NewEncryptorWithSalt derives the key from password and salt.
func NewEncryptorWithSalt(password string, salt []byte) (*Encryptor, error) {
	if len(salt) != EncryptionSaltSize {
		return nil, errors.New("invalid salt size")
	}
	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	e := &Encryptor{
		gcm:      gcm,
		salt:     append([]byte(nil), salt...),
		password: password,
		derived:  make(map[string]cipher.AEAD),
	}
	e.derived[string(e.salt)] = gcm
	return e, nil
}

// NewEncryptorWithKey creates an encryptor with a raw key. Its blobs carry a zero salt.
func NewEncryptorWithKey(key []byte) (*Encryptor, error) {
	if len(key) != EncryptionKeySize {
		return nil, errors.New("encryption key must be 32 bytes for AES-256")
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &Encryptor{
		gcm:     gcm,
		salt:    make([]byte, EncryptionSaltSize),
		derived: make(map[string]cipher.AEAD),
	}, nil
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, EncryptionKeySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Salt returns the salt used for key derivation.
func (e *Encryptor) Salt() []byte {
	return e.salt
}

// Encrypt seals plaintext and returns the framed blob.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, EncryptionNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, EncryptedHeaderSize+EncryptionNonceSize+len(plaintext)+e.gcm.Overhead())
	out = append(out, MagicEncrypted[:]...)
	out = append(out, 1)
	out = append(out, e.salt...)
	out = append(out, nonce...)
	return e.gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt.
func (e *Encryptor) Decrypt(blob []byte) ([]byte, error) {
	if !IsEncrypted(blob) {
		return nil, errors.New("invalid encrypted blob magic")
	}
	if len(blob) < EncryptedHeaderSize+EncryptionNonceSize {
		return nil, errors.New("ciphertext too short")
	}
	if blob[4] != 1 {
		return nil, errors.New("unsupported encrypted blob version")
	}

	gcm, err := e.aeadFor(blob[5:EncryptedHeaderSize])
	if err != nil {
		return nil, err
	}
	nonce := blob[EncryptedHeaderSize : EncryptedHeaderSize+EncryptionNonceSize]
	return gcm.Open(nil, nonce, blob[EncryptedHeaderSize+EncryptionNonceSize:], nil)
}

func (e *Encryptor) aeadFor(salt []byte) (cipher.AEAD, error) {
	if bytes.Equal(salt, e.salt) {
		return e.gcm, nil
	}
	if e.password == "" {
		return nil, errors.New("blob was sealed with a different key")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gcm, ok := e.derived[string(salt)]; ok {
		return gcm, nil
	}
	gcm, err := newGCM(deriveKey(e.password, salt))
	if err != nil {
		return nil, err
	}
	e.derived[string(salt)] = gcm
	return gcm, nil
}

// IsEncrypted reports whether blob starts with the encryption magic.
func IsEncrypted(blob []byte) bool {
	return len(blob) >= len(MagicEncrypted) && bytes.Equal(blob[:4], MagicEncrypted[:])
}
