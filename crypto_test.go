package pathoram

import (
	"bytes"
	"testing"
)

func TestEncryptorRoundTrip(t *testing.T) {
	suites := []CipherSuite{CipherAESGCM256, CipherChaCha20Poly1305}
	key := make([]byte, aeadKeySize)
	for i := range key {
		key[i] = byte(i)
	}

	for _, suite := range suites {
		t.Run(suite.String(), func(t *testing.T) {
			enc, err := NewEncryptor(suite, key)
			if err != nil {
				t.Fatalf("NewEncryptor(%v) error: %v", suite, err)
			}

			plaintext := []byte("the quick brown fox jumps over the lazy dog")
			ciphertext, err := enc.Encrypt(plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error: %v", err)
			}
			if bytes.Equal(ciphertext, plaintext) {
				t.Fatalf("Encrypt() returned plaintext unchanged")
			}

			got, err := enc.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt() error: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Errorf("Decrypt(Encrypt(x)) = %q, want %q", got, plaintext)
			}
		})
	}
}

func TestEncryptorTamperDetection(t *testing.T) {
	key := make([]byte, aeadKeySize)
	enc, err := NewEncryptor(CipherAESGCM256, key)
	if err != nil {
		t.Fatalf("NewEncryptor() error: %v", err)
	}

	ciphertext, err := enc.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := enc.Decrypt(tampered); err == nil {
		t.Error("Decrypt() on tampered ciphertext returned nil error, want tag-mismatch failure")
	}
}

func TestEncryptorRejectsShortCiphertext(t *testing.T) {
	key := make([]byte, aeadKeySize)
	enc, err := NewEncryptor(CipherAESGCM256, key)
	if err != nil {
		t.Fatalf("NewEncryptor() error: %v", err)
	}
	if _, err := enc.Decrypt([]byte("short")); err == nil {
		t.Error("Decrypt() on too-short input returned nil error, want failure")
	}
}

func TestNewEncryptorRejectsBadKeySize(t *testing.T) {
	if _, err := NewEncryptor(CipherAESGCM256, []byte("too-short")); err == nil {
		t.Error("NewEncryptor() with short key returned nil error, want failure")
	}
}

func TestNoOpEncryptorRoundTrip(t *testing.T) {
	var enc NoOpEncryptor
	plaintext := []byte("hello")
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if !bytes.Equal(ciphertext, plaintext) {
		t.Errorf("NoOpEncryptor.Encrypt() = %q, want %q unchanged", ciphertext, plaintext)
	}
	got, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("NoOpEncryptor.Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestSecureRandomIndexBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		n, err := secureRandomIndex(8)
		if err != nil {
			t.Fatalf("secureRandomIndex() error: %v", err)
		}
		if n < 0 || n >= 8 {
			t.Fatalf("secureRandomIndex(8) = %d, out of range [0,8)", n)
		}
	}
}

func TestSecureRandomIndexZero(t *testing.T) {
	n, err := secureRandomIndex(0)
	if err != nil {
		t.Fatalf("secureRandomIndex(0) error: %v", err)
	}
	if n != 0 {
		t.Errorf("secureRandomIndex(0) = %d, want 0", n)
	}
}
