package pathoram

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherSuite selects the AEAD construction used for block payloads.
// AES-GCM-256 is the recommended baseline (spec.md §4.1); ChaCha20-
// Poly1305 is offered as the second real AEAD family in the
// ecosystem rather than a hand-rolled AES-CBC+HMAC construction.
type CipherSuite int

const (
	CipherAESGCM256 CipherSuite = iota
	CipherChaCha20Poly1305
)

func (c CipherSuite) String() string {
	switch c {
	case CipherAESGCM256:
		return "AES-GCM-256"
	case CipherChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	default:
		return "unknown"
	}
}

const (
	aeadKeySize   = 32 // 256-bit key for either suite
	aeadNonceSize = 12
	aeadTagSize   = 16
)

// Encryptor authenticates and encrypts block payloads under a single
// process-wide key. Output layout is always nonce‖ciphertext‖tag
// (spec.md §6, "on-wire / persisted layout").
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// aeadEncryptor adapts any cipher.AEAD satisfying the 12-byte-nonce,
// 16-byte-tag shape to the Encryptor interface.
type aeadEncryptor struct {
	aead cipher.AEAD
}

// NewEncryptor builds the Encryptor for the given suite from a
// 32-byte key. Called once per engine, from a key established at
// first use (see processKey below); never rotated.
func NewEncryptor(suite CipherSuite, key []byte) (Encryptor, error) {
	if len(key) != aeadKeySize {
		return nil, &CryptoError{Op: "new-encryptor", Err: fmt.Errorf("key must be %d bytes, got %d", aeadKeySize, len(key))}
	}

	var aead cipher.AEAD
	switch suite {
	case CipherAESGCM256:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, &CryptoError{Op: "aes-new-cipher", Err: err}
		}
		aead, err = cipher.NewGCM(block)
		if err != nil {
			return nil, &CryptoError{Op: "aes-gcm-new", Err: err}
		}
	case CipherChaCha20Poly1305:
		var err error
		aead, err = chacha20poly1305.New(key)
		if err != nil {
			return nil, &CryptoError{Op: "chacha20poly1305-new", Err: err}
		}
	default:
		return nil, &CryptoError{Op: "new-encryptor", Err: fmt.Errorf("unknown cipher suite %d", suite)}
	}
	return &aeadEncryptor{aead: aead}, nil
}

// Encrypt returns nonce‖ciphertext‖tag, drawing a fresh nonce from
// the CSPRNG for every call (spec.md §4.1).
func (e *aeadEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, aeadNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, &RngError{Err: err}
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt parses nonce‖ciphertext‖tag and verifies integrity. Any
// tag mismatch, truncation, or parse failure fails with a wrapped
// CryptoError (ErrCrypto) — never silently recovered.
func (e *aeadEncryptor) Decrypt(input []byte) ([]byte, error) {
	if len(input) < aeadNonceSize+aeadTagSize {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("ciphertext too short: %d bytes", len(input))}
	}
	nonce, ct := input[:aeadNonceSize], input[aeadNonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}
	return plaintext, nil
}

// NoOpEncryptor is a pass-through used only by tests that need to
// inspect plaintext block contents directly.
type NoOpEncryptor struct{}

func (NoOpEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	return append([]byte(nil), plaintext...), nil
}

func (NoOpEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	return append([]byte(nil), ciphertext...), nil
}

// processKey is the lazily-initialized, process-wide symmetric key
// (spec.md §4.1, "Key lifecycle"). It is generated once from the
// CSPRNG on first use, never rotated, and never persisted; its
// lifetime equals the process's.
var (
	processKeyOnce sync.Once
	processKey     []byte
	processKeyErr  error
)

func getProcessKey() ([]byte, error) {
	processKeyOnce.Do(func() {
		key := make([]byte, aeadKeySize)
		if _, err := rand.Read(key); err != nil {
			processKeyErr = &RngError{Err: err}
			return
		}
		processKey = key
	})
	return processKey, processKeyErr
}

// secureRandomU32 draws a uniform 32-bit integer from the OS CSPRNG.
func secureRandomU32() (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<32))
	if err != nil {
		return 0, &RngError{Err: err}
	}
	return uint32(n.Uint64()), nil
}

// secureRandomIndex returns a uniform random index in [0, n); 0 if
// n == 0 (spec.md §4.1). Modulo-based reduction is acceptable per the
// spec given the 32-bit source and the small ranges used here (leaf
// counts and bucket widths).
func secureRandomIndex(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := secureRandomU32()
	if err != nil {
		return 0, err
	}
	return int(v % uint32(n)), nil
}
