// Package ledger records inbound paybill payments, relays them to the tenant
// named by the bill reference and enriches them once the status query
// result arrives.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/dispatch"
	"github.com/example/paybill-gateway/internal/domain"
	perr "github.com/example/paybill-gateway/pkg/errors"
	m "github.com/example/paybill-gateway/pkg/metrics"
)

type Registry interface {
	ResolveCredential(ctx context.Context, tenant *domain.Tenant, credentialID string) (*domain.Credential, error)
	CredentialByShortCode(ctx context.Context, shortCode string) (*domain.Credential, error)
	TenantByBillReference(ctx context.Context, billRef string) (*domain.Tenant, error)
}

type Store interface {
	CreateEntry(ctx context.Context, e *domain.LedgerEntry) error
	EntriesByTransactionNumber(ctx context.Context, transactionNumber string, limit int) ([]domain.LedgerEntry, error)
	EnrichEntry(ctx context.Context, id int64, phone string, fullName *string, at time.Time) error
	EntriesByReference(ctx context.Context, credentialRef int64, accountReference string) ([]domain.LedgerEntry, error)
	EntriesByCredential(ctx context.Context, credentialRef int64) ([]domain.LedgerEntry, error)
}

type StatusQuerier interface {
	QueryStatus(ctx context.Context, cred *domain.Credential, transactionID, resultURL, timeoutURL string) (json.RawMessage, error)
}

type Forwarder interface {
	Forward(ctx context.Context, url string, body []byte) error
}

type Dispatcher interface {
	Go(name string, timeout time.Duration, task dispatch.Task, fields ...zap.Field) bool
}

type Events interface {
	Emit(ctx context.Context, kind, key string, payload any)
}

type Options struct {
	ResultURL      string
	TimeoutURL     string
	QueryTimeout   time.Duration
	ForwardTimeout time.Duration
}

type Reconciler struct {
	registry Registry
	store    Store
	gw       StatusQuerier
	fwd      Forwarder
	bg       Dispatcher
	events   Events
	log      *zap.Logger
	opts     Options
	now      func() time.Time
}

func New(reg Registry, s Store, gw StatusQuerier, fwd Forwarder, bg Dispatcher, events Events, log *zap.Logger, opts Options) *Reconciler {
	return &Reconciler{
		registry: reg, store: s, gw: gw, fwd: fwd, bg: bg, events: events, log: log, opts: opts,
		now: time.Now,
	}
}

func parseObject(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, perr.New(perr.MalformedCallback, "body is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return gjson.Result{}, perr.New(perr.MalformedCallback, "body is not a JSON object")
	}
	return root, nil
}

// Confirm records a paybill confirmation. Only an unparseable body is an
// error; everything past that is logged, since the gateway must always get
// its acknowledgement.
func (r *Reconciler) Confirm(ctx context.Context, body []byte) error {
	root, err := parseObject(body)
	if err != nil {
		m.IncCallback("confirmation", "malformed")
		return err
	}
	shortCode := shortCodeOf(root)
	txID := root.Get("TransID").String()
	billRef := root.Get("BillRefNumber").String()
	log := r.log.With(zap.String("short_code", shortCode), zap.String("transaction_number", txID))

	cred, err := r.registry.CredentialByShortCode(ctx, shortCode)
	if err != nil {
		if perr.Is(err, perr.NotFound) {
			m.IncCallback("confirmation", "unknown_short_code")
			log.Warn("confirmation for unknown short code")
		} else {
			m.IncCallback("confirmation", "error")
			log.Error("credential lookup failed", zap.Error(err))
		}
		return nil
	}

	amount, err := decimal.NewFromString(root.Get("TransAmount").String())
	if err != nil {
		log.Warn("unparseable TransAmount, recording zero", zap.String("TransAmount", root.Get("TransAmount").Raw))
		amount = decimal.Zero
	}
	entry := &domain.LedgerEntry{
		CredentialRef:     cred.ID,
		TransactionNumber: txID,
		Amount:            amount,
		FirstName:         root.Get("FirstName").String(),
		TransTime:         root.Get("TransTime").String(),
		AccountReference:  billRef,
		ShortCode:         shortCode,
	}
	if err := r.store.CreateEntry(ctx, entry); err != nil {
		m.IncCallback("confirmation", "persist_failed")
		log.Error("ledger entry not persisted", zap.Error(err))
	} else {
		m.IncCallback("confirmation", "recorded")
		log.Info("ledger entry recorded", zap.Int64("entry_id", entry.ID), zap.String("bill_ref", billRef))
		r.events.Emit(ctx, "ledger.recorded", txID, map[string]any{
			"transaction_number": txID,
			"short_code":         shortCode,
			"account_reference":  billRef,
			"amount":             amount.String(),
		})
	}

	if txID != "" {
		r.bg.Go("statusquery", r.opts.QueryTimeout, func(ctx context.Context) error {
			_, err := r.gw.QueryStatus(ctx, cred, txID, r.opts.ResultURL, r.opts.TimeoutURL)
			return err
		}, zap.String("transaction_number", txID), zap.String("short_code", shortCode))
	}

	r.forwardToTenant(ctx, billRef, body, log)
	return nil
}

func (r *Reconciler) forwardToTenant(ctx context.Context, billRef string, body []byte, log *zap.Logger) {
	tenant, err := r.registry.TenantByBillReference(ctx, billRef)
	if err != nil {
		log.Error("tenant lookup by bill reference failed", zap.Error(err))
		return
	}
	if tenant == nil || tenant.CallbackURL == nil || *tenant.CallbackURL == "" {
		m.IncForward("skipped")
		log.Debug("no tenant webhook for bill reference", zap.String("bill_ref", billRef))
		return
	}
	url := *tenant.CallbackURL
	payload := append([]byte(nil), body...)
	r.bg.Go("forward", r.opts.ForwardTimeout, func(ctx context.Context) error {
		return r.fwd.Forward(ctx, url, payload)
	}, zap.Int64("tenant_id", tenant.ID), zap.String("url", url))
}

// Enrich applies a status query result: on success it copies the payer's
// phone and name onto the ledger entry with that exact receipt number.
func (r *Reconciler) Enrich(ctx context.Context, body []byte) error {
	root, err := parseObject(body)
	if err != nil {
		m.IncCallback("result", "malformed")
		return err
	}
	result := root.Get("Result")
	if code := result.Get("ResultCode"); !code.Exists() || code.Int() != 0 {
		m.IncCallback("result", "not_successful")
		r.log.Info("status query result not successful",
			zap.String("result_code", code.String()),
			zap.String("result_desc", result.Get("ResultDesc").String()))
		return nil
	}

	var receipt, debitParty string
	eachParam(result.Get("ResultParameters.ResultParameter"), func(key string, value gjson.Result) {
		switch key {
		case "ReceiptNo":
			receipt = value.String()
		case "DebitPartyName":
			debitParty = value.String()
		}
	})
	log := r.log.With(zap.String("transaction_number", receipt))
	if receipt == "" || debitParty == "" {
		m.IncCallback("result", "incomplete")
		log.Info("status query result without receipt or debit party")
		return nil
	}

	entries, err := r.store.EntriesByTransactionNumber(ctx, receipt, 2)
	if err != nil {
		m.IncCallback("result", "error")
		log.Error("ledger lookup failed", zap.Error(err))
		return nil
	}
	if len(entries) != 1 {
		m.IncCallback("result", "unmatched")
		log.Warn("enrichment skipped", zap.Int("matches", len(entries)))
		return nil
	}

	phone, fullName := domain.SplitDebitParty(debitParty)
	if err := r.store.EnrichEntry(ctx, entries[0].ID, phone, fullName, r.now().UTC()); err != nil {
		m.IncCallback("result", "error")
		log.Error("ledger enrichment failed", zap.Error(err))
		return nil
	}
	m.IncCallback("result", "enriched")
	log.Info("ledger entry enriched", zap.Int64("entry_id", entries[0].ID))
	r.events.Emit(ctx, "ledger.enriched", receipt, map[string]any{
		"transaction_number": receipt,
		"phone_number":       phone,
		"full_name":          fullName,
	})
	return nil
}

// eachParam walks ResultParameter, which the gateway sends as an array or,
// with a single parameter, as a bare object.
func eachParam(params gjson.Result, fn func(key string, value gjson.Result)) {
	visit := func(p gjson.Result) {
		if p.IsObject() {
			fn(p.Get("Key").String(), p.Get("Value"))
		}
	}
	if params.IsArray() {
		for _, p := range params.Array() {
			visit(p)
		}
		return
	}
	visit(params)
}

// shortCodeOf reads BusinessShortCode, falling back to ShortCode.
func shortCodeOf(root gjson.Result) string {
	if v := root.Get("BusinessShortCode").String(); v != "" {
		return v
	}
	return root.Get("ShortCode").String()
}

// Validate answers the gateway's validation request. Payments are always
// accepted; a body for an inactive or unknown short code is only logged.
func (r *Reconciler) Validate(ctx context.Context, body []byte) error {
	root, err := parseObject(body)
	if err != nil {
		m.IncCallback("validation", "malformed")
		return err
	}
	shortCode := shortCodeOf(root)
	cred, err := r.registry.CredentialByShortCode(ctx, shortCode)
	switch {
	case err != nil:
		r.log.Warn("validation for unknown short code", zap.String("short_code", shortCode))
	case !cred.IsActive:
		r.log.Warn("validation for inactive credential", zap.String("short_code", shortCode),
			zap.String("credential_id", cred.CredentialID))
	}
	m.IncCallback("validation", "accepted")
	return nil
}

// Timeout logs a status query that timed out in the gateway queue.
func (r *Reconciler) Timeout(_ context.Context, body []byte) error {
	root, err := parseObject(body)
	if err != nil {
		m.IncCallback("timeout", "malformed")
		return err
	}
	m.IncCallback("timeout", "received")
	r.log.Warn("status query timed out",
		zap.String("conversation_id", root.Get("Result.ConversationID").String()),
		zap.String("result_desc", root.Get("Result.ResultDesc").String()))
	return nil
}

// Transactions lists ledger entries of one credential for one bill reference.
func (r *Reconciler) Transactions(ctx context.Context, tenant *domain.Tenant, credentialID, accountReference string) ([]domain.LedgerEntry, error) {
	cred, err := r.registry.ResolveCredential(ctx, tenant, credentialID)
	if err != nil {
		return nil, err
	}
	out, err := r.store.EntriesByReference(ctx, cred.ID, accountReference)
	if err != nil {
		return nil, perr.Wrap(perr.Internal, "list ledger entries", err)
	}
	return out, nil
}

// All lists every ledger entry of one credential.
func (r *Reconciler) All(ctx context.Context, tenant *domain.Tenant, credentialID string) ([]domain.LedgerEntry, error) {
	cred, err := r.registry.ResolveCredential(ctx, tenant, credentialID)
	if err != nil {
		return nil, err
	}
	out, err := r.store.EntriesByCredential(ctx, cred.ID)
	if err != nil {
		return nil, perr.Wrap(perr.Internal, "list ledger entries", err)
	}
	return out, nil
}
