// Package registry owns tenants and their merchant credentials: API key
// resolution, credential ownership checks and account number allocation.
package registry

import (
	"context"
	"errors"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/domain"
	"github.com/example/paybill-gateway/internal/store"
	perr "github.com/example/paybill-gateway/pkg/errors"
)

// MaxAccountAttempts bounds account number draws before giving up.
const MaxAccountAttempts = 100

type Store interface {
	store.TenantStore
	store.CredentialStore
}

type Registry struct {
	store Store
	log   *zap.Logger
	draw  func() string
}

func New(s Store, log *zap.Logger) *Registry {
	return &Registry{store: s, log: log, draw: randomAccountNumber}
}

func randomAccountNumber() string {
	var b [domain.AccountNumberLen]byte
	for i := range b {
		b[i] = byte('a' + rand.Intn(26))
	}
	return string(b[:])
}

func newKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ResolveTenant maps an API key to its tenant.
func (r *Registry) ResolveTenant(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	if apiKey == "" {
		return nil, perr.New(perr.Unauthorized, "Missing X-API-Key header")
	}
	t, err := r.store.TenantByAPIKey(ctx, apiKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, perr.New(perr.Unauthorized, "Invalid API key")
	}
	if err != nil {
		return nil, perr.Wrap(perr.Internal, "lookup tenant", err)
	}
	return t, nil
}

// owned loads a credential and checks it belongs to tenant, without looking
// at its active flag.
func (r *Registry) owned(ctx context.Context, tenant *domain.Tenant, credentialID string) (*domain.Credential, error) {
	c, err := r.store.CredentialByID(ctx, credentialID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, perr.New(perr.NotFound, "Credential not found")
	}
	if err != nil {
		return nil, perr.Wrap(perr.Internal, "lookup credential", err)
	}
	if c.TenantID != tenant.ID {
		return nil, perr.New(perr.Forbidden, "Credential does not belong to this app")
	}
	return c, nil
}

// ResolveCredential returns the tenant's credential if it exists, is owned by
// tenant and is active, in that order of checks.
func (r *Registry) ResolveCredential(ctx context.Context, tenant *domain.Tenant, credentialID string) (*domain.Credential, error) {
	c, err := r.owned(ctx, tenant, credentialID)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, perr.New(perr.Inactive, "Credential is inactive")
	}
	return c, nil
}

// GenerateAccountNumber draws 3-letter candidates and hands each to claim,
// which must insert it atomically and return an error wrapping
// store.ErrDuplicate on collision. Any other claim error aborts.
func (r *Registry) GenerateAccountNumber(ctx context.Context, claim func(ctx context.Context, accountNumber string) error) (string, error) {
	for attempt := 1; attempt <= MaxAccountAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := r.draw()
		err := claim(ctx, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return "", err
		}
		r.log.Debug("account number taken", zap.String("candidate", candidate), zap.Int("attempt", attempt))
	}
	r.log.Error("account number keyspace exhausted", zap.Int("attempts", MaxAccountAttempts))
	return "", perr.New(perr.ExhaustedKeyspace, "could not allocate a unique account number")
}

// RegisterTenant creates a tenant with a fresh account number and API key.
func (r *Registry) RegisterTenant(ctx context.Context, name string, callbackURL *string) (*domain.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, perr.New(perr.InvalidInput, "name is required")
	}

	var t *domain.Tenant
	_, err := r.GenerateAccountNumber(ctx, func(ctx context.Context, acct string) error {
		candidate := &domain.Tenant{Name: name, AccountNumber: acct, APIKey: newKey(), CallbackURL: callbackURL}
		if err := r.store.CreateTenant(ctx, candidate); err != nil {
			return err
		}
		t = candidate
		return nil
	})
	if err != nil {
		if _, ok := perr.As(err); ok {
			return nil, err
		}
		return nil, perr.Wrap(perr.Internal, "create tenant", err)
	}
	r.log.Info("tenant registered", zap.Int64("tenant_id", t.ID), zap.String("account_number", t.AccountNumber))
	return t, nil
}

type TenantPatch struct {
	Name        *string
	CallbackURL *string
}

func (r *Registry) UpdateTenant(ctx context.Context, t *domain.Tenant, p TenantPatch) (*domain.Tenant, error) {
	updated := *t
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, perr.New(perr.InvalidInput, "name must not be empty")
		}
		updated.Name = name
	}
	if p.CallbackURL != nil {
		cb := *p.CallbackURL
		updated.CallbackURL = &cb
	}
	if err := r.store.UpdateTenant(ctx, &updated); err != nil {
		return nil, perr.Wrap(perr.Internal, "update tenant", err)
	}
	return &updated, nil
}

type CredentialInput struct {
	Name               string
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string
	Passkey            string
	InitiatorName      string
	SecurityCredential string
	Environment        domain.Environment
}

// RegisterCredential stores a new active credential owned by tenant.
func (r *Registry) RegisterCredential(ctx context.Context, tenant *domain.Tenant, in CredentialInput) (*domain.Credential, error) {
	if in.Environment == "" {
		in.Environment = domain.Production
	}
	if !in.Environment.Valid() {
		return nil, perr.New(perr.InvalidInput, "environment must be production or sandbox")
	}
	if in.ConsumerKey == "" || in.ConsumerSecret == "" || in.ShortCode == "" || in.Passkey == "" {
		return nil, perr.New(perr.InvalidInput, "consumer_key, consumer_secret, business_short_code and passkey are required")
	}
	c := &domain.Credential{
		TenantID:           tenant.ID,
		CredentialID:       newKey(),
		Name:               in.Name,
		ConsumerKey:        in.ConsumerKey,
		ConsumerSecret:     in.ConsumerSecret,
		ShortCode:          in.ShortCode,
		Passkey:            in.Passkey,
		InitiatorName:      in.InitiatorName,
		SecurityCredential: in.SecurityCredential,
		Environment:        in.Environment,
		IsActive:           true,
	}
	if err := r.store.CreateCredential(ctx, c); err != nil {
		return nil, perr.Wrap(perr.Internal, "create credential", err)
	}
	r.log.Info("credential registered",
		zap.Int64("tenant_id", tenant.ID),
		zap.String("credential_id", c.CredentialID),
		zap.String("short_code", c.ShortCode),
		zap.String("environment", string(c.Environment)))
	return c, nil
}

func (r *Registry) ListCredentials(ctx context.Context, tenant *domain.Tenant) ([]domain.Credential, error) {
	out, err := r.store.ListCredentials(ctx, tenant.ID)
	if err != nil {
		return nil, perr.Wrap(perr.Internal, "list credentials", err)
	}
	return out, nil
}

type CredentialPatch struct {
	Name               *string
	ConsumerKey        *string
	ConsumerSecret     *string
	ShortCode          *string
	Passkey            *string
	InitiatorName      *string
	SecurityCredential *string
	Environment        *domain.Environment
	IsActive           *bool
}

// UpdateCredential applies a partial update. Ownership is checked; the active
// flag is not, so an inactive credential can be switched back on.
func (r *Registry) UpdateCredential(ctx context.Context, tenant *domain.Tenant, credentialID string, p CredentialPatch) (*domain.Credential, error) {
	c, err := r.owned(ctx, tenant, credentialID)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Name, p.Name)
	set(&c.ConsumerKey, p.ConsumerKey)
	set(&c.ConsumerSecret, p.ConsumerSecret)
	set(&c.ShortCode, p.ShortCode)
	set(&c.Passkey, p.Passkey)
	set(&c.InitiatorName, p.InitiatorName)
	set(&c.SecurityCredential, p.SecurityCredential)
	if p.Environment != nil {
		if !p.Environment.Valid() {
			return nil, perr.New(perr.InvalidInput, "environment must be production or sandbox")
		}
		c.Environment = *p.Environment
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if err := r.store.UpdateCredential(ctx, c); err != nil {
		return nil, perr.Wrap(perr.Internal, "update credential", err)
	}
	return c, nil
}

// CredentialByShortCode finds the credential a gateway notification targets.
func (r *Registry) CredentialByShortCode(ctx context.Context, shortCode string) (*domain.Credential, error) {
	c, err := r.store.CredentialByShortCode(ctx, shortCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, perr.New(perr.NotFound, "no credential for short code")
	}
	if err != nil {
		return nil, perr.Wrap(perr.Internal, "lookup credential by short code", err)
	}
	return c, nil
}

// TenantByBillReference resolves the tenant a payer addressed through the
// bill reference prefix. A nil tenant with nil error means no tenant matches.
func (r *Registry) TenantByBillReference(ctx context.Context, billRef string) (*domain.Tenant, error) {
	acct, ok := domain.AccountNumberFromBillRef(billRef)
	if !ok {
		return nil, nil
	}
	t, err := r.store.TenantByAccountNumber(ctx, acct)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, perr.Wrap(perr.Internal, "lookup tenant by account number", err)
	}
	return t, nil
}
