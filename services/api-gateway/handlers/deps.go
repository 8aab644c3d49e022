// services/api-gateway/handlers/deps.go
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/callback"
	"github.com/example/paybill-gateway/internal/config"
	"github.com/example/paybill-gateway/internal/domain"
	"github.com/example/paybill-gateway/internal/push"
	"github.com/example/paybill-gateway/internal/registry"
)

type Tenants interface {
	ResolveTenant(ctx context.Context, apiKey string) (*domain.Tenant, error)
	ResolveCredential(ctx context.Context, tenant *domain.Tenant, credentialID string) (*domain.Credential, error)
	RegisterTenant(ctx context.Context, name string, callbackURL *string) (*domain.Tenant, error)
	UpdateTenant(ctx context.Context, t *domain.Tenant, p registry.TenantPatch) (*domain.Tenant, error)
	RegisterCredential(ctx context.Context, tenant *domain.Tenant, in registry.CredentialInput) (*domain.Credential, error)
	ListCredentials(ctx context.Context, tenant *domain.Tenant) ([]domain.Credential, error)
	UpdateCredential(ctx context.Context, tenant *domain.Tenant, credentialID string, p registry.CredentialPatch) (*domain.Credential, error)
}

type Pushes interface {
	Initiate(ctx context.Context, tenant *domain.Tenant, req push.Request) (json.RawMessage, error)
}

type Callbacks interface {
	Handle(ctx context.Context, body []byte) (*callback.Result, error)
}

type Ledger interface {
	Confirm(ctx context.Context, body []byte) error
	Enrich(ctx context.Context, body []byte) error
	Validate(ctx context.Context, body []byte) error
	Timeout(ctx context.Context, body []byte) error
	Transactions(ctx context.Context, tenant *domain.Tenant, credentialID, accountReference string) ([]domain.LedgerEntry, error)
	All(ctx context.Context, tenant *domain.Tenant, credentialID string) ([]domain.LedgerEntry, error)
}

type URLRegistrar interface {
	RegisterURLs(ctx context.Context, cred *domain.Credential, confirmationURL, validationURL string) (json.RawMessage, error)
}

type Deps struct {
	Tenants   Tenants
	Pushes    Pushes
	Callbacks Callbacks
	Ledger    Ledger
	Gateway   URLRegistrar
	URLs      config.CallbackURLs
	AdminKey  string
	Log       *zap.Logger
	Validate  *validator.Validate

	// Timeout bounds each tenant-facing request, gateway round trips included.
	Timeout time.Duration
}

func (d Deps) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return 45 * time.Second
}
