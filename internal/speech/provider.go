// Package speech synthesizes prompt audio and caches the resulting assets
// by content hash so identical prompts never hit the provider twice.
package speech

import (
	"context"
	"errors"
)

// Provider converts text to speech audio.
//
// Implementations must return the typed errors below so callers can tell
// retryable failures (rate limits) apart from non-retryable ones (bad
// credentials, malformed requests).
type Provider interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

var (
	// ErrRateLimited is retryable with backoff.
	ErrRateLimited = errors.New("speech: provider rate limited")
	// ErrAuth means credentials are missing or rejected; never retried.
	ErrAuth = errors.New("speech: provider authentication failed")
	// ErrInvalidRequest means the request itself is malformed; never retried.
	ErrInvalidRequest = errors.New("speech: invalid synthesis request")
	// ErrUnavailable means no provider is configured for this deployment.
	ErrUnavailable = errors.New("speech: no synthesis provider configured")
)
