package pathoram

import "errors"

// Sentinel errors returned by the engine. All are fatal to the operation
// that surfaces them; none are retried internally.
var (
	// ErrInvalidConfig is the sentinel every ConfigError returned by
	// Config.Validate unwraps to, for callers that only check error
	// identity. InMemoryStorage also returns it directly for an
	// out-of-range bucket index or a bucket of the wrong length.
	ErrInvalidConfig = errors.New("pathoram: invalid configuration")

	// ErrStashOverflow is raised when the stash exceeds its configured
	// limit after every emergency measure (remap, full eviction,
	// priority drop, dynamic growth) has been tried.
	ErrStashOverflow = errors.New("pathoram: stash overflow")

	// ErrCrypto covers AEAD tag failure, truncated ciphertext, or any
	// other decryption/encryption failure.
	ErrCrypto = errors.New("pathoram: crypto failure")

	// ErrRNG covers CSPRNG failure. The engine treats this as fatal
	// and does not fall back to a weaker source.
	ErrRNG = errors.New("pathoram: secure random source failed")

	// ErrClosed is returned by any public operation issued after
	// Close has been called on the owning structure.
	ErrClosed = errors.New("pathoram: structure is closed")
)

// ConfigError aggregates every configuration violation Config.Validate
// found, rather than surfacing only the first. It unwraps to
// ErrInvalidConfig so callers doing errors.Is(err, ErrInvalidConfig)
// keep working.
type ConfigError struct {
	errs error // *multierror.Error
}

func (e *ConfigError) Error() string {
	return e.errs.Error()
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// CryptoError wraps ErrCrypto with the operation that failed.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return "pathoram: " + e.Op + ": " + e.Err.Error()
}

func (e *CryptoError) Unwrap() error {
	return ErrCrypto
}

// RngError wraps ErrRNG with the underlying source error.
type RngError struct {
	Err error
}

func (e *RngError) Error() string {
	return "pathoram: secure random source failed: " + e.Err.Error()
}

func (e *RngError) Unwrap() error {
	return ErrRNG
}
