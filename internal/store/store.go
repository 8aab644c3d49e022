// Package store persists tenants, credentials, pending pushes and paybill
// ledger entries. Postgres is the production backend; Memory serves local
// runs without DATABASE_URL and package tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/paybill-gateway/internal/domain"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
)

type TenantStore interface {
	// CreateTenant inserts t and fills its ID and timestamps. A clash on the
	// account number or API key returns an error wrapping ErrDuplicate.
	CreateTenant(ctx context.Context, t *domain.Tenant) error
	TenantByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error)
	TenantByAccountNumber(ctx context.Context, accountNumber string) (*domain.Tenant, error)
	UpdateTenant(ctx context.Context, t *domain.Tenant) error
}

type CredentialStore interface {
	CreateCredential(ctx context.Context, c *domain.Credential) error
	CredentialByID(ctx context.Context, credentialID string) (*domain.Credential, error)
	// CredentialByShortCode prefers an active credential, then the oldest.
	CredentialByShortCode(ctx context.Context, shortCode string) (*domain.Credential, error)
	ListCredentials(ctx context.Context, tenantID int64) ([]domain.Credential, error)
	// UpdateCredential writes the mutable fields. TenantID is never updated.
	UpdateCredential(ctx context.Context, c *domain.Credential) error
}

type PushStore interface {
	CreatePush(ctx context.Context, p *domain.PendingPush) error
	// FindPushes returns at most limit pushes carrying exactly this pair.
	FindPushes(ctx context.Context, merchantRequestID, checkoutRequestID string, limit int) ([]domain.PendingPush, error)
	// ResolvePush moves a Pending push to Done. It reports false when the row
	// was no longer Pending.
	ResolvePush(ctx context.Context, id int64, res domain.Resolution, at time.Time) (bool, error)
	StalePushes(ctx context.Context, olderThan time.Time, limit int) ([]domain.PendingPush, error)
}

type LedgerStore interface {
	CreateEntry(ctx context.Context, e *domain.LedgerEntry) error
	EntriesByTransactionNumber(ctx context.Context, transactionNumber string, limit int) ([]domain.LedgerEntry, error)
	EnrichEntry(ctx context.Context, id int64, phone string, fullName *string, at time.Time) error
	EntriesByReference(ctx context.Context, credentialRef int64, accountReference string) ([]domain.LedgerEntry, error)
	EntriesByCredential(ctx context.Context, credentialRef int64) ([]domain.LedgerEntry, error)
}

type Store interface {
	TenantStore
	CredentialStore
	PushStore
	LedgerStore
	Ping(ctx context.Context) error
	Close() error
}
