package ledger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/paybill-gateway/internal/dispatch"
	"github.com/example/paybill-gateway/internal/domain"
	"github.com/example/paybill-gateway/internal/forward"
	"github.com/example/paybill-gateway/internal/registry"
	"github.com/example/paybill-gateway/internal/store"
	perr "github.com/example/paybill-gateway/pkg/errors"
)

type queryCall struct {
	shortCode, txID, resultURL, timeoutURL string
}

type fakeQuerier struct {
	mu    sync.Mutex
	calls []queryCall
}

func (f *fakeQuerier) QueryStatus(_ context.Context, cred *domain.Credential, txID, resultURL, timeoutURL string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, queryCall{cred.ShortCode, txID, resultURL, timeoutURL})
	return json.RawMessage(`{"ResponseCode":"0"}`), nil
}

type nopEvents struct{}

func (nopEvents) Emit(context.Context, string, string, any) {}

type LedgerSuite struct {
	suite.Suite
	ctx     context.Context
	mem     *store.Memory
	reg     *registry.Registry
	bg      *dispatch.Dispatcher
	querier *fakeQuerier
	rec     *Reconciler

	hook     *httptest.Server
	hookMu   sync.Mutex
	received [][]byte

	tenant *domain.Tenant
	cred   *domain.Credential
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.mem = store.NewMemory()
	s.reg = registry.New(s.mem, zap.NewNop())
	s.bg = dispatch.New(zap.NewNop())
	s.querier = &fakeQuerier{}
	s.received = nil

	s.hook = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		s.hookMu.Lock()
		s.received = append(s.received, b)
		s.hookMu.Unlock()
	}))

	hookURL := s.hook.URL + "/payments"
	s.tenant = &domain.Tenant{Name: "Shop", AccountNumber: "abc", APIKey: "key-abc", CallbackURL: &hookURL}
	s.Require().NoError(s.mem.CreateTenant(s.ctx, s.tenant))
	var err error
	s.cred, err = s.reg.RegisterCredential(s.ctx, s.tenant, registry.CredentialInput{
		ConsumerKey: "ck", ConsumerSecret: "cs", ShortCode: "600000", Passkey: "pk", InitiatorName: "api",
	})
	s.Require().NoError(err)

	s.rec = New(s.reg, s.mem, s.querier, forward.New(time.Second, zap.NewNop()), s.bg, nopEvents{}, zap.NewNop(), Options{
		ResultURL: "https://pay.example/resulturl", TimeoutURL: "https://pay.example/timeouturl",
		QueryTimeout: time.Second, ForwardTimeout: time.Second,
	})
}

func (s *LedgerSuite) TearDownTest() {
	s.bg.Close()
	s.hook.Close()
}

// settle waits for detached work to finish.
func (s *LedgerSuite) settle() {
	s.bg.Close()
}

func (s *LedgerSuite) forwarded() [][]byte {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	return s.received
}

func confirmation(billRef string) []byte {
	return []byte(`{"TransactionType":"Pay Bill","TransID":"QK1","TransTime":"20240102030405","TransAmount":"150.00",` +
		`"BusinessShortCode":"600000","BillRefNumber":"` + billRef + `","MSISDN":"2547 ***","FirstName":"JOHN"}`)
}

func (s *LedgerSuite) TestConfirmRecordsQueriesAndForwards() {
	body := confirmation("ABC12345")
	s.Require().NoError(s.rec.Confirm(s.ctx, body))
	s.settle()

	entries, err := s.mem.EntriesByTransactionNumber(s.ctx, "QK1", 2)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("150", entries[0].Amount.String())
	s.Equal("ABC12345", entries[0].AccountReference)
	s.Equal("20240102030405", entries[0].TransTime)
	s.Equal("600000", entries[0].ShortCode)
	s.Equal(s.cred.ID, entries[0].CredentialRef)

	s.Equal([]queryCall{{"600000", "QK1", "https://pay.example/resulturl", "https://pay.example/timeouturl"}}, s.querier.calls)

	got := s.forwarded()
	s.Require().Len(got, 1)
	s.Equal(body, got[0])
}

func (s *LedgerSuite) TestConfirmShortBillRefDoesNotForward() {
	s.Require().NoError(s.rec.Confirm(s.ctx, confirmation("AB")))
	s.settle()
	s.Empty(s.forwarded())
	s.Len(s.querier.calls, 1)
}

func (s *LedgerSuite) TestConfirmUnknownTenantPrefixDoesNotForward() {
	s.Require().NoError(s.rec.Confirm(s.ctx, confirmation("XYZ999")))
	s.settle()
	s.Empty(s.forwarded())
}

func (s *LedgerSuite) TestConfirmTenantWithoutWebhook() {
	quiet := &domain.Tenant{Name: "Quiet", AccountNumber: "qqq", APIKey: "key-q"}
	s.Require().NoError(s.mem.CreateTenant(s.ctx, quiet))
	s.Require().NoError(s.rec.Confirm(s.ctx, confirmation("QQQ1")))
	s.settle()
	s.Empty(s.forwarded())
}

func (s *LedgerSuite) TestConfirmUnknownShortCodeIsAcknowledged() {
	body := []byte(`{"TransID":"QK9","BusinessShortCode":"999999","BillRefNumber":"ABC1","TransAmount":"1"}`)
	s.Require().NoError(s.rec.Confirm(s.ctx, body))
	s.settle()

	entries, _ := s.mem.EntriesByTransactionNumber(s.ctx, "QK9", 2)
	s.Empty(entries)
	s.Empty(s.querier.calls)
	s.Empty(s.forwarded())
}

func (s *LedgerSuite) TestConfirmAcceptsShortCodeField() {
	body := []byte(`{"TransID":"QK2","ShortCode":600000,"BillRefNumber":"zz","TransAmount":10}`)
	s.Require().NoError(s.rec.Confirm(s.ctx, body))
	entries, _ := s.mem.EntriesByTransactionNumber(s.ctx, "QK2", 2)
	s.Require().Len(entries, 1)
	s.Equal("10", entries[0].Amount.String())
}

func (s *LedgerSuite) TestConfirmMalformed() {
	s.True(perr.Is(s.rec.Confirm(s.ctx, []byte(`{oops`)), perr.MalformedCallback))
}

func result(code int, params string) []byte {
	return []byte(`{"Result":{"ResultType":0,"ResultCode":` + itoa(code) + `,"ResultDesc":"The service request is processed successfully.",` +
		`"ConversationID":"AG_1","ResultParameters":{"ResultParameter":` + params + `}}}`)
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

func (s *LedgerSuite) seedEntry(txn string) domain.LedgerEntry {
	e := domain.LedgerEntry{CredentialRef: s.cred.ID, TransactionNumber: txn, ShortCode: "600000"}
	s.Require().NoError(s.mem.CreateEntry(s.ctx, &e))
	return e
}

func (s *LedgerSuite) TestEnrichSplitsDebitParty() {
	s.seedEntry("QK1")
	body := result(0, `[{"Key":"DebitPartyName","Value":"254712345678 - JOHN DOE"},{"Key":"ReceiptNo","Value":"QK1"},{"Key":"Amount","Value":150}]`)
	s.Require().NoError(s.rec.Enrich(s.ctx, body))

	entries, _ := s.mem.EntriesByTransactionNumber(s.ctx, "QK1", 2)
	s.Require().NotNil(entries[0].PhoneNumber)
	s.Equal("254712345678", *entries[0].PhoneNumber)
	s.Require().NotNil(entries[0].FullName)
	s.Equal("JOHN DOE", *entries[0].FullName)
}

func (s *LedgerSuite) TestEnrichWithoutName() {
	s.seedEntry("QK1")
	body := result(0, `[{"Key":"DebitPartyName","Value":"254712345678"},{"Key":"ReceiptNo","Value":"QK1"}]`)
	s.Require().NoError(s.rec.Enrich(s.ctx, body))

	entries, _ := s.mem.EntriesByTransactionNumber(s.ctx, "QK1", 2)
	s.Equal("254712345678", *entries[0].PhoneNumber)
	s.Nil(entries[0].FullName)
}

func (s *LedgerSuite) TestEnrichSkipsFailedResult() {
	s.seedEntry("QK1")
	body := result(2001, `[{"Key":"DebitPartyName","Value":"254712345678 - JOHN DOE"},{"Key":"ReceiptNo","Value":"QK1"}]`)
	s.Require().NoError(s.rec.Enrich(s.ctx, body))

	entries, _ := s.mem.EntriesByTransactionNumber(s.ctx, "QK1", 2)
	s.Nil(entries[0].PhoneNumber)
}

func (s *LedgerSuite) TestEnrichSkipsAmbiguousAndMissing() {
	s.seedEntry("QK1")
	s.seedEntry("QK1")
	body := result(0, `[{"Key":"DebitPartyName","Value":"254712345678 - JOHN DOE"},{"Key":"ReceiptNo","Value":"QK1"}]`)
	s.Require().NoError(s.rec.Enrich(s.ctx, body))
	entries, _ := s.mem.EntriesByTransactionNumber(s.ctx, "QK1", 0)
	for _, e := range entries {
		s.Nil(e.PhoneNumber)
	}

	body = result(0, `[{"Key":"DebitPartyName","Value":"254712345678 - JOHN DOE"},{"Key":"ReceiptNo","Value":"NOPE"}]`)
	s.NoError(s.rec.Enrich(s.ctx, body))
}

func (s *LedgerSuite) TestEnrichSingleObjectParameter() {
	s.seedEntry("QK1")
	body := []byte(`{"Result":{"ResultCode":0,"ResultParameters":{"ResultParameter":{"Key":"ReceiptNo","Value":"QK1"}}}}`)
	s.Require().NoError(s.rec.Enrich(s.ctx, body))
	entries, _ := s.mem.EntriesByTransactionNumber(s.ctx, "QK1", 2)
	s.Nil(entries[0].PhoneNumber)
}

func (s *LedgerSuite) TestValidateAndTimeoutAlwaysAccept() {
	s.NoError(s.rec.Validate(s.ctx, []byte(`{"BusinessShortCode":"600000"}`)))
	s.NoError(s.rec.Validate(s.ctx, []byte(`{"BusinessShortCode":"1"}`)))
	s.NoError(s.rec.Timeout(s.ctx, []byte(`{"Result":{"ConversationID":"AG_1"}}`)))
	s.True(perr.Is(s.rec.Validate(s.ctx, []byte(`nope`)), perr.MalformedCallback))
}

func (s *LedgerSuite) TestValidateAcceptsShortCodeField() {
	core, logs := observer.New(zap.WarnLevel)
	rec := New(s.reg, s.mem, s.querier, forward.New(time.Second, zap.NewNop()), s.bg, nopEvents{}, zap.New(core), Options{})

	s.NoError(rec.Validate(s.ctx, []byte(`{"ShortCode":"600000","TransID":"QK1"}`)))
	s.Zero(logs.Len())

	s.NoError(rec.Validate(s.ctx, []byte(`{"ShortCode":"1"}`)))
	entries := logs.FilterMessage("validation for unknown short code").All()
	s.Require().Len(entries, 1)
	s.Equal("1", entries[0].ContextMap()["short_code"])
}

func (s *LedgerSuite) TestReadsCheckOwnership() {
	s.Require().NoError(s.rec.Confirm(s.ctx, confirmation("ABC12345")))

	byRef, err := s.rec.Transactions(s.ctx, s.tenant, s.cred.CredentialID, "ABC12345")
	s.Require().NoError(err)
	s.Len(byRef, 1)

	all, err := s.rec.All(s.ctx, s.tenant, s.cred.CredentialID)
	s.Require().NoError(err)
	s.Len(all, 1)

	other := &domain.Tenant{Name: "Other", AccountNumber: "oth", APIKey: "key-o"}
	s.Require().NoError(s.mem.CreateTenant(s.ctx, other))
	_, err = s.rec.All(s.ctx, other, s.cred.CredentialID)
	s.True(perr.Is(err, perr.Forbidden))
}

func TestEachParam(t *testing.T) {
	var keys []string
	collect := func(k string, _ gjson.Result) { keys = append(keys, k) }
	eachParam(gjson.Parse(`[{"Key":"A"},{"Key":"B"},"junk"]`), collect)
	eachParam(gjson.Parse(`{"Key":"C"}`), collect)
	eachParam(gjson.Parse(`null`), collect)
	assert.Equal(t, []string{"A", "B", "C"}, keys)
}
