package certify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validCert() Certificate {
	return Certificate{
		ID:                  "cert-1",
		Owner:               "seller",
		Status:              StatusValid,
		EnergyAmount:        1000,
		ExpiresAt:           2000,
		ValidatedForTrading: true,
	}
}

func newTestChecker(provider Provider, now int64) *Checker {
	return NewChecker(provider,
		WithClock(func() int64 { return now }),
		WithTimeout(200*time.Millisecond),
		WithMaxElapsed(100*time.Millisecond),
	)
}

func TestCheckValidCertificate(t *testing.T) {
	p := NewStaticProvider()
	p.Put(validCert())

	c := newTestChecker(p, 1000)
	assert.NoError(t, c.Check(context.Background(), "cert-1", 500))
}

func TestCheckRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Certificate)
		amount uint64
		want   error
	}{
		{"revoked", func(c *Certificate) { c.Status = StatusRevoked }, 500, ErrInvalidCertificate},
		{"pending", func(c *Certificate) { c.Status = StatusPending }, 500, ErrInvalidCertificate},
		{"status expired", func(c *Certificate) { c.Status = StatusExpired }, 500, ErrCertificateExpired},
		{"past expiry", func(c *Certificate) { c.ExpiresAt = 999 }, 500, ErrCertificateExpired},
		{"not validated", func(c *Certificate) { c.ValidatedForTrading = false }, 500, ErrNotValidatedForTrading},
		{"amount too large", func(c *Certificate) {}, 1001, ErrExceedsCertifiedAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := validCert()
			tt.mutate(&cert)

			p := NewStaticProvider()
			p.Put(cert)

			err := newTestChecker(p, 1000).Check(context.Background(), cert.ID, tt.amount)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// edge case: zero expiry means no expiry
func TestCheckNoExpiry(t *testing.T) {
	cert := validCert()
	cert.ExpiresAt = 0

	p := NewStaticProvider()
	p.Put(cert)

	assert.NoError(t, newTestChecker(p, 1<<40).Check(context.Background(), cert.ID, 500))
}

func TestCheckMissingCertificateIsPermanent(t *testing.T) {
	p := NewStaticProvider()
	start := time.Now()
	err := newTestChecker(p, 1000).Check(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, ErrCertificateNotFound)
	// a permanent failure must return without further retries
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

// flakyProvider fails a fixed number of times before succeeding.
type flakyProvider struct {
	failures int
	cert     Certificate
}

func (p *flakyProvider) GetCertificate(_ context.Context, id string) (Certificate, error) {
	if p.failures > 0 {
		p.failures--
		return Certificate{}, errors.New("registry timeout")
	}
	return p.cert, nil
}

func TestCheckRetriesTransientFailures(t *testing.T) {
	p := &flakyProvider{failures: 1, cert: validCert()}
	c := NewChecker(p,
		WithClock(func() int64 { return 1000 }),
		WithTimeout(3*time.Second),
		WithMaxElapsed(2*time.Second),
	)
	assert.NoError(t, c.Check(context.Background(), "cert-1", 500))
}

// brokenProvider never succeeds.
type brokenProvider struct{}

func (brokenProvider) GetCertificate(context.Context, string) (Certificate, error) {
	return Certificate{}, errors.New("connection refused")
}

func TestCheckOutageReadsAsUnavailable(t *testing.T) {
	c := newTestChecker(brokenProvider{}, 1000)
	err := c.Check(context.Background(), "cert-1", 1)
	assert.ErrorIs(t, err, ErrCertificateUnavailable)
}
