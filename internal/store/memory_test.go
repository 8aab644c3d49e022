package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/example/paybill-gateway/internal/domain"
)

type MemorySuite struct {
	suite.Suite
	ctx    context.Context
	store  *Memory
	tenant domain.Tenant
	cred   domain.Credential
}

func (s *MemorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewMemory()

	s.tenant = domain.Tenant{Name: "Shop", AccountNumber: "abc", APIKey: "key-1"}
	s.Require().NoError(s.store.CreateTenant(s.ctx, &s.tenant))

	s.cred = domain.Credential{
		TenantID: s.tenant.ID, CredentialID: "cred-1", Name: "main", ShortCode: "600000",
		Environment: domain.Sandbox, IsActive: true,
	}
	s.Require().NoError(s.store.CreateCredential(s.ctx, &s.cred))
}

func TestMemorySuite(t *testing.T) {
	suite.Run(t, new(MemorySuite))
}

func (s *MemorySuite) TestTenantUniqueKeys() {
	err := s.store.CreateTenant(s.ctx, &domain.Tenant{Name: "Other", AccountNumber: "abc", APIKey: "key-2"})
	s.True(errors.Is(err, ErrDuplicate))

	err = s.store.CreateTenant(s.ctx, &domain.Tenant{Name: "Other", AccountNumber: "abd", APIKey: "key-1"})
	s.True(errors.Is(err, ErrDuplicate))
}

func (s *MemorySuite) TestTenantLookups() {
	t, err := s.store.TenantByAPIKey(s.ctx, "key-1")
	s.Require().NoError(err)
	s.Equal("abc", t.AccountNumber)

	t, err = s.store.TenantByAccountNumber(s.ctx, "abc")
	s.Require().NoError(err)
	s.Equal(s.tenant.ID, t.ID)

	_, err = s.store.TenantByAPIKey(s.ctx, "nope")
	s.ErrorIs(err, ErrNotFound)
}

func (s *MemorySuite) TestUpdateCredentialKeepsOwner() {
	c := s.cred
	c.TenantID = 999
	c.IsActive = false
	s.Require().NoError(s.store.UpdateCredential(s.ctx, &c))

	got, err := s.store.CredentialByID(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Equal(s.tenant.ID, got.TenantID)
	s.False(got.IsActive)
}

func (s *MemorySuite) TestCredentialByShortCodePrefersActive() {
	s.cred.IsActive = false
	s.Require().NoError(s.store.UpdateCredential(s.ctx, &s.cred))
	second := domain.Credential{TenantID: s.tenant.ID, CredentialID: "cred-2", ShortCode: "600000", IsActive: true}
	s.Require().NoError(s.store.CreateCredential(s.ctx, &second))

	got, err := s.store.CredentialByShortCode(s.ctx, "600000")
	s.Require().NoError(err)
	s.Equal("cred-2", got.CredentialID)

	_, err = s.store.CredentialByShortCode(s.ctx, "111111")
	s.ErrorIs(err, ErrNotFound)
}

func (s *MemorySuite) TestResolvePushIsGuarded() {
	p := domain.PendingPush{
		CredentialRef: s.cred.ID, MerchantRequestID: "M1", CheckoutRequestID: "C1",
		PhoneNumber: "254712345678", AccountReference: "ABC1", Amount: decimal.NewFromInt(10),
	}
	s.Require().NoError(s.store.CreatePush(s.ctx, &p))
	s.Equal(domain.StatusPending, p.Status)

	err := s.store.CreatePush(s.ctx, &domain.PendingPush{MerchantRequestID: "M1", CheckoutRequestID: "C1"})
	s.ErrorIs(err, ErrDuplicate)

	ok, err := s.store.ResolvePush(s.ctx, p.ID, domain.Resolution{ResultCode: intp(0), ResultDesc: "ok"}, time.Now())
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.ResolvePush(s.ctx, p.ID, domain.Resolution{ResultCode: intp(1032), ResultDesc: "cancelled"}, time.Now())
	s.Require().NoError(err)
	s.False(ok)

	found, err := s.store.FindPushes(s.ctx, "M1", "C1", 2)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(domain.StatusDone, found[0].Status)
	s.Equal("ok", *found[0].ResultDesc)

	found, err = s.store.FindPushes(s.ctx, "M1", "C2", 2)
	s.Require().NoError(err)
	s.Empty(found)
}

func (s *MemorySuite) TestStalePushes() {
	old := domain.PendingPush{CredentialRef: s.cred.ID, MerchantRequestID: "M1", CheckoutRequestID: "C1"}
	fresh := domain.PendingPush{CredentialRef: s.cred.ID, MerchantRequestID: "M2", CheckoutRequestID: "C2"}
	s.Require().NoError(s.store.CreatePush(s.ctx, &old))
	s.Require().NoError(s.store.CreatePush(s.ctx, &fresh))
	s.store.AgePush(old.ID, time.Now().Add(-time.Hour))

	stale, err := s.store.StalePushes(s.ctx, time.Now().Add(-15*time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal("M1", stale[0].MerchantRequestID)
}

func (s *MemorySuite) TestLedgerEnrichAndQueries() {
	e := domain.LedgerEntry{
		CredentialRef: s.cred.ID, TransactionNumber: "QK1", Amount: decimal.RequireFromString("150.00"),
		FirstName: "JOHN", AccountReference: "ABC123", ShortCode: "600000",
	}
	s.Require().NoError(s.store.CreateEntry(s.ctx, &e))

	name := "JOHN DOE"
	s.Require().NoError(s.store.EnrichEntry(s.ctx, e.ID, "254712345678", &name, time.Now()))

	got, err := s.store.EntriesByTransactionNumber(s.ctx, "QK1", 2)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("254712345678", *got[0].PhoneNumber)
	s.Equal("JOHN DOE", *got[0].FullName)

	byRef, err := s.store.EntriesByReference(s.ctx, s.cred.ID, "ABC123")
	s.Require().NoError(err)
	s.Len(byRef, 1)

	all, err := s.store.EntriesByCredential(s.ctx, s.cred.ID)
	s.Require().NoError(err)
	s.Len(all, 1)

	s.ErrorIs(s.store.EnrichEntry(s.ctx, 404, "x", nil, time.Now()), ErrNotFound)
}
