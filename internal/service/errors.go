package service

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrCiphertextNotFound = errors.New("ciphertext not found")
	// ErrDeviceConflict surfaces a concurrent registration collision; the
	// caller retries and gets a fresh identifier.
	ErrDeviceConflict = errors.New("device identifier conflict")
)
