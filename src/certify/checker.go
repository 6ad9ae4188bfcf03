package certify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

const (
	defaultCheckTimeout = 2 * time.Second
	defaultMaxElapsed   = 1500 * time.Millisecond
)

// Checker validates a certificate reference against a requested sell
// amount. Provider lookups are retried with exponential backoff inside
// a hard deadline; exhausting the deadline reads as
// ErrCertificateUnavailable so callers treat registry outages as a
// validation failure rather than hanging the order path.
type Checker struct {
	provider   Provider
	timeout    time.Duration
	maxElapsed time.Duration
	now        func() int64
}

type CheckerOption func(*Checker)

func WithTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) { c.timeout = d }
}

func WithMaxElapsed(d time.Duration) CheckerOption {
	return func(c *Checker) { c.maxElapsed = d }
}

func WithClock(now func() int64) CheckerOption {
	return func(c *Checker) { c.now = now }
}

func NewChecker(provider Provider, opts ...CheckerOption) *Checker {
	c := &Checker{
		provider:   provider,
		timeout:    defaultCheckTimeout,
		maxElapsed: defaultMaxElapsed,
		now:        func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check fetches the certificate and applies the trading rules: the
// status must be Valid, the expiry must not have passed, the record
// must be validated for trading, and the certified energy must cover
// the requested amount. Each rule fails with its own error.
func (c *Checker) Check(ctx context.Context, certificateID string, amount uint64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fetch := func() (Certificate, error) {
		cert, err := c.provider.GetCertificate(ctx, certificateID)
		if err != nil {
			// edge case: a missing record never becomes present by retrying
			if errors.Is(err, ErrCertificateNotFound) {
				return Certificate{}, backoff.Permanent(err)
			}
			return Certificate{}, err
		}
		return cert, nil
	}

	cert, err := backoff.Retry(ctx, fetch,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.maxElapsed),
	)
	if err != nil {
		if errors.Is(err, ErrCertificateNotFound) {
			return ErrCertificateNotFound
		}
		log.Warn().
			Err(err).
			Str("certificate_id", certificateID).
			Msg("Certificate registry unreachable")
		return fmt.Errorf("%w: %v", ErrCertificateUnavailable, err)
	}

	if cert.Status != StatusValid {
		if cert.Status == StatusExpired {
			return ErrCertificateExpired
		}
		return ErrInvalidCertificate
	}
	if cert.ExpiresAt > 0 && c.now() >= cert.ExpiresAt {
		return ErrCertificateExpired
	}
	if !cert.ValidatedForTrading {
		return ErrNotValidatedForTrading
	}
	if cert.EnergyAmount < amount {
		return ErrExceedsCertifiedAmount
	}
	return nil
}
