// Package common defines shared constants and sentinel errors used across
// cytoguard components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Session lifecycle errors. An expired session is reported the same way as
	// an unknown one.
	ErrSessionNotFound = errors.New("session not found")

	// Key material invalid, session destroyed, or ciphertext tampered with.
	ErrCrypto = errors.New("crypto error")

	// Stored content no longer matches the digest recorded at save time.
	ErrIntegrity = errors.New("integrity check failed")

	// Temporary storage unavailable or path outside the store.
	ErrStore = errors.New("store error")

	// The prediction collaborator failed.
	ErrInference = errors.New("inference error")
)
