package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/paybill-gateway/internal/domain"
)

// Memory keeps everything in process behind one mutex. It enforces the same
// unique keys as the Postgres schema.
type Memory struct {
	mu sync.Mutex

	nextID      int64
	tenants     map[int64]domain.Tenant
	credentials map[int64]domain.Credential
	pushes      map[int64]domain.PendingPush
	entries     map[int64]domain.LedgerEntry
}

func NewMemory() *Memory {
	return &Memory{
		tenants:     map[int64]domain.Tenant{},
		credentials: map[int64]domain.Credential{},
		pushes:      map[int64]domain.PendingPush{},
		entries:     map[int64]domain.LedgerEntry{},
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func dup(constraint string) error {
	return fmt.Errorf("%w: %s", ErrDuplicate, constraint)
}

func sortedKeys[V any](in map[int64]V) []int64 {
	keys := make([]int64, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

/*************** tenants ***************/

func (m *Memory) CreateTenant(_ context.Context, t *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if existing.AccountNumber == t.AccountNumber {
			return dup("tenants_account_number_key")
		}
		if existing.APIKey == t.APIKey {
			return dup("tenants_api_key_key")
		}
	}
	now := time.Now().UTC()
	t.ID, t.CreatedAt, t.UpdatedAt = m.id(), now, now
	m.tenants[t.ID] = *t
	return nil
}

func (m *Memory) TenantByAPIKey(_ context.Context, apiKey string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.APIKey == apiKey {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) TenantByAccountNumber(_ context.Context, accountNumber string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.AccountNumber == accountNumber {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateTenant(_ context.Context, t *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tenants[t.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Name = t.Name
	cur.CallbackURL = t.CallbackURL
	cur.UpdatedAt = time.Now().UTC()
	m.tenants[t.ID] = cur
	t.UpdatedAt = cur.UpdatedAt
	return nil
}

/*************** credentials ***************/

func (m *Memory) CreateCredential(_ context.Context, c *domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[c.TenantID]; !ok {
		return fmt.Errorf("store: tenant %d does not exist", c.TenantID)
	}
	for _, existing := range m.credentials {
		if existing.CredentialID == c.CredentialID {
			return dup("credentials_credential_id_key")
		}
	}
	now := time.Now().UTC()
	c.ID, c.CreatedAt, c.UpdatedAt = m.id(), now, now
	m.credentials[c.ID] = *c
	return nil
}

func (m *Memory) CredentialByID(_ context.Context, credentialID string) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.credentials {
		if c.CredentialID == credentialID {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CredentialByShortCode(_ context.Context, shortCode string) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *domain.Credential
	for _, id := range sortedKeys(m.credentials) {
		c := m.credentials[id]
		if c.ShortCode != shortCode {
			continue
		}
		if c.IsActive {
			return &c, nil
		}
		if found == nil {
			found = &c
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (m *Memory) ListCredentials(_ context.Context, tenantID int64) ([]domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Credential
	for _, id := range sortedKeys(m.credentials) {
		if c := m.credentials[id]; c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) UpdateCredential(_ context.Context, c *domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.credentials[c.ID]
	if !ok {
		return ErrNotFound
	}
	owner, created := cur.TenantID, cur.CreatedAt
	cur = *c
	cur.TenantID, cur.CreatedAt = owner, created
	cur.UpdatedAt = time.Now().UTC()
	m.credentials[c.ID] = cur
	c.UpdatedAt = cur.UpdatedAt
	return nil
}

/*************** pending pushes ***************/

func (m *Memory) CreatePush(_ context.Context, p *domain.PendingPush) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.pushes {
		if existing.MerchantRequestID == p.MerchantRequestID && existing.CheckoutRequestID == p.CheckoutRequestID {
			return dup("pending_pushes_pair_key")
		}
	}
	if p.Status == "" {
		p.Status = domain.StatusPending
	}
	now := time.Now().UTC()
	p.ID, p.CreatedAt, p.UpdatedAt = m.id(), now, now
	m.pushes[p.ID] = *p
	return nil
}

func (m *Memory) FindPushes(_ context.Context, merchantRequestID, checkoutRequestID string, limit int) ([]domain.PendingPush, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PendingPush
	for _, id := range sortedKeys(m.pushes) {
		p := m.pushes[id]
		if p.MerchantRequestID == merchantRequestID && p.CheckoutRequestID == checkoutRequestID {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ResolvePush(_ context.Context, id int64, r domain.Resolution, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pushes[id]
	if !ok || p.Status != domain.StatusPending {
		return false, nil
	}
	desc := r.ResultDesc
	p.Status = domain.StatusDone
	p.ResultCode = nil
	if r.ResultCode != nil {
		code := *r.ResultCode
		p.ResultCode = &code
	}
	p.ResultDesc = &desc
	if r.ReceiptNumber != nil {
		receipt := *r.ReceiptNumber
		p.ReceiptNumber = &receipt
	}
	p.UpdatedAt = at
	m.pushes[id] = p
	return true, nil
}

func (m *Memory) StalePushes(_ context.Context, olderThan time.Time, limit int) ([]domain.PendingPush, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PendingPush
	for _, p := range m.pushes {
		if p.Status == domain.StatusPending && p.CreatedAt.Before(olderThan) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

/*************** ledger ***************/

func (m *Memory) CreateEntry(_ context.Context, e *domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	e.ID, e.CreatedAt, e.UpdatedAt = m.id(), now, now
	m.entries[e.ID] = *e
	return nil
}

func (m *Memory) EntriesByTransactionNumber(_ context.Context, transactionNumber string, limit int) ([]domain.LedgerEntry, error) {
	return m.filterEntries(limit, func(e domain.LedgerEntry) bool {
		return e.TransactionNumber == transactionNumber
	}), nil
}

func (m *Memory) EnrichEntry(_ context.Context, id int64, phone string, fullName *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.PhoneNumber = &phone
	e.FullName = fullName
	e.UpdatedAt = at
	m.entries[id] = e
	return nil
}

func (m *Memory) EntriesByReference(_ context.Context, credentialRef int64, accountReference string) ([]domain.LedgerEntry, error) {
	return m.filterEntries(0, func(e domain.LedgerEntry) bool {
		return e.CredentialRef == credentialRef && e.AccountReference == accountReference
	}), nil
}

func (m *Memory) EntriesByCredential(_ context.Context, credentialRef int64) ([]domain.LedgerEntry, error) {
	return m.filterEntries(0, func(e domain.LedgerEntry) bool {
		return e.CredentialRef == credentialRef
	}), nil
}

// filterEntries returns matches in insertion order; limit 0 means no limit.
func (m *Memory) filterEntries(limit int, keep func(domain.LedgerEntry) bool) []domain.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LedgerEntry
	for _, id := range sortedKeys(m.entries) {
		if e := m.entries[id]; keep(e) {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// AgePush rewrites created_at of a push.
func (m *Memory) AgePush(id int64, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pushes[id]; ok {
		p.CreatedAt = createdAt
		m.pushes[id] = p
	}
}
