// Package cryptox holds the per-session symmetric crypto context used to keep
// uploaded images encrypted at rest.
//
// A Session owns a random 32-byte secret that never leaves process memory.
// The AES-256 key is derived from it with PBKDF2-HMAC-SHA256; ciphertexts are
// AES-GCM and carry their own nonce, so Decrypt needs nothing but the bytes
// Encrypt returned.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/cytoguard/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SecretSize is the length of the random session secret.
	SecretSize = 32
	// SaltSize is the length of a generated per-session salt.
	SaltSize = 16
	// KeySize selects AES-256.
	KeySize = 32
	// MinIterations is the PBKDF2 iteration floor.
	MinIterations = 100_000
)

// Session is a live crypto context. It is safe for concurrent use.
type Session struct {
	mu     sync.RWMutex
	secret []byte
	salt   []byte
	key    []byte
	aead   cipher.AEAD
	id     string
	rand   io.Reader
}

type options struct {
	salt       []byte
	iterations int
	rand       io.Reader
}

// Option configures NewSession.
type Option func(*options)

// WithSalt fixes the KDF salt instead of generating one per session.
func WithSalt(salt []byte) Option {
	return func(o *options) {
		o.salt = append([]byte(nil), salt...)
	}
}

// WithIterations raises the PBKDF2 iteration count. Values below
// MinIterations are ignored.
func WithIterations(n int) Option {
	return func(o *options) {
		if n >= MinIterations {
			o.iterations = n
		}
	}
}

// WithEntropy replaces crypto/rand as the source of secrets, salts and nonces.
func WithEntropy(r io.Reader) Option {
	return func(o *options) {
		o.rand = r
	}
}

// DeriveKey stretches secret into a KeySize key. It is deterministic for a
// given (secret, salt, iterations) triple.
func DeriveKey(secret, salt []byte, iterations int) []byte {
	if iterations < MinIterations {
		iterations = MinIterations
	}
	return pbkdf2.Key(secret, salt, iterations, KeySize, sha256.New)
}

// NewSession generates a fresh secret, derives the key and prepares the
// cipher. It fails only when the entropy source fails.
func NewSession(opts ...Option) (*Session, error) {
	o := &options{iterations: MinIterations, rand: rand.Reader}
	for _, opt := range opts {
		opt(o)
	}

	secret := make([]byte, SecretSize)
	if _, err := io.ReadFull(o.rand, secret); err != nil {
		return nil, fmt.Errorf("generating session secret: %w", err)
	}

	salt := o.salt
	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := io.ReadFull(o.rand, salt); err != nil {
			common.WipeByteArray(secret)
			return nil, fmt.Errorf("generating salt: %w", err)
		}
	}

	key := DeriveKey(secret, salt, o.iterations)

	aead, err := newAEAD(key)
	if err != nil {
		common.WipeByteArray(secret)
		common.WipeByteArray(key)
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	sum := sha256.Sum256(secret)

	return &Session{
		secret: secret,
		salt:   salt,
		key:    key,
		aead:   aead,
		id:     hex.EncodeToString(sum[:])[:16],
		rand:   o.rand,
	}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// ID is a short, non-secret fingerprint of the session secret used to tag
// audit entries.
func (s *Session) ID() string {
	return s.id
}

// Salt returns a copy of the KDF salt.
func (s *Session) Salt() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.salt...)
}

// Encrypt seals plaintext. The result is nonce || ciphertext || tag.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.aead == nil {
		return nil, fmt.Errorf("%w: session not initialized", common.ErrCrypto)
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", common.ErrCrypto, err)
	}

	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a value produced by Encrypt. Any tampering, truncation or a
// destroyed session yields an error wrapping common.ErrCrypto.
func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.aead == nil {
		return nil, fmt.Errorf("%w: session not initialized", common.ErrCrypto)
	}

	ns := s.aead.NonceSize()
	if len(ciphertext) < ns+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", common.ErrCrypto)
	}

	plaintext, err := s.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return plaintext, nil
}

// Destroy wipes the key material. Later Encrypt/Decrypt calls fail.
// Calling it twice is harmless.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	common.WipeByteArray(s.secret)
	common.WipeByteArray(s.key)
	s.secret = nil
	s.key = nil
	s.aead = nil
}
