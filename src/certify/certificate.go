package certify

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrCertificateNotFound    = errors.New("certificate not found")
	ErrInvalidCertificate     = errors.New("certificate not valid")
	ErrCertificateExpired     = errors.New("certificate expired")
	ErrNotValidatedForTrading = errors.New("certificate not validated for trading")
	ErrExceedsCertifiedAmount = errors.New("amount exceeds certified energy")
	// ErrCertificateUnavailable means the collaborator could not be
	// reached within the bounded wait. It is a validation failure, not
	// a matching error.
	ErrCertificateUnavailable = errors.New("certificate unavailable")
)

type Status string

const (
	StatusValid   Status = "VALID"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
	StatusPending Status = "PENDING"
)

// Certificate is the read-only credential record backing a sell order.
// ExpiresAt of zero means no expiry.
type Certificate struct {
	ID                  string
	Owner               string
	Status              Status
	EnergyAmount        uint64
	ExpiresAt           int64
	ValidatedForTrading bool
}

// Provider fetches certificate records. Implementations may sit in
// front of a remote registry; the Checker bounds the wait.
type Provider interface {
	GetCertificate(ctx context.Context, id string) (Certificate, error)
}

// StaticProvider serves certificates from memory. Used when the
// exchange runs without an external registry, and in tests.
type StaticProvider struct {
	mu    sync.RWMutex
	certs map[string]Certificate
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{certs: make(map[string]Certificate)}
}

func (p *StaticProvider) Put(cert Certificate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.certs[cert.ID] = cert
}

func (p *StaticProvider) GetCertificate(_ context.Context, id string) (Certificate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cert, ok := p.certs[id]
	if !ok {
		return Certificate{}, ErrCertificateNotFound
	}
	return cert, nil
}
