// Package push initiates customer payment pushes and records them as pending
// until the gateway calls back.
package push

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/domain"
	"github.com/example/paybill-gateway/internal/gateway"
	"github.com/example/paybill-gateway/internal/logging"
	perr "github.com/example/paybill-gateway/pkg/errors"
)

const (
	maxDescLen      = 13
	maxReferenceLen = 12
	defaultDesc     = "Payment"

	// once the gateway accepted a push the row is written even if the
	// caller went away
	persistTimeout = 10 * time.Second
)

type Credentials interface {
	ResolveCredential(ctx context.Context, tenant *domain.Tenant, credentialID string) (*domain.Credential, error)
}

type Gateway interface {
	InitiatePush(ctx context.Context, cred *domain.Credential, req gateway.PushRequest) (*gateway.PushAccepted, error)
}

type Store interface {
	CreatePush(ctx context.Context, p *domain.PendingPush) error
}

type Events interface {
	Emit(ctx context.Context, kind, key string, payload any)
}

type Request struct {
	CredentialID    string
	Amount          int64
	PhoneNumber     string
	AccountNumber   string
	TransactionDesc string
}

type Initiator struct {
	creds       Credentials
	gw          Gateway
	store       Store
	events      Events
	log         *zap.Logger
	callbackURL string
	region      string
}

func New(creds Credentials, gw Gateway, s Store, events Events, log *zap.Logger, callbackURL, region string) *Initiator {
	return &Initiator{creds: creds, gw: gw, store: s, events: events, log: log, callbackURL: callbackURL, region: region}
}

// Initiate validates req, sends the push with the tenant's credential and
// records it as pending. Nothing is stored unless the gateway accepted the
// push. It returns the gateway's success payload unchanged.
func (i *Initiator) Initiate(ctx context.Context, tenant *domain.Tenant, req Request) (json.RawMessage, error) {
	if req.Amount <= 0 {
		return nil, perr.New(perr.InvalidInput, "amount must be a positive integer")
	}
	ref := strings.TrimSpace(req.AccountNumber)
	if ref == "" || len(ref) > maxReferenceLen {
		return nil, perr.New(perr.InvalidInput, "accountNumber must be 1 to 12 characters")
	}
	phone, err := NormalizeMSISDN(req.PhoneNumber, i.region)
	if err != nil {
		return nil, perr.Wrap(perr.InvalidInput, "invalid phoneNumber", err)
	}
	desc := strings.TrimSpace(req.TransactionDesc)
	if desc == "" {
		desc = defaultDesc
	}
	if len(desc) > maxDescLen {
		desc = desc[:maxDescLen]
	}

	cred, err := i.creds.ResolveCredential(ctx, tenant, req.CredentialID)
	if err != nil {
		return nil, err
	}

	acc, err := i.gw.InitiatePush(ctx, cred, gateway.PushRequest{
		Amount:           req.Amount,
		PhoneNumber:      phone,
		AccountReference: ref,
		TransactionDesc:  desc,
		CallbackURL:      i.callbackURL,
	})
	if err != nil {
		return nil, err
	}

	p := &domain.PendingPush{
		CredentialRef:     cred.ID,
		MerchantRequestID: acc.MerchantRequestID,
		CheckoutRequestID: acc.CheckoutRequestID,
		PhoneNumber:       phone,
		AccountReference:  ref,
		Amount:            decimal.NewFromInt(req.Amount),
		Status:            domain.StatusPending,
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := i.store.CreatePush(pctx, p); err != nil {
		// The gateway has the push; only manual reconciliation can recover it.
		i.log.Error("pending push not persisted",
			zap.String("merchant_request_id", acc.MerchantRequestID),
			zap.String("checkout_request_id", acc.CheckoutRequestID),
			zap.String("short_code", cred.ShortCode),
			zap.String("gateway_response", logging.Truncate(string(acc.Raw), 500)),
			zap.Error(err))
		return nil, perr.Wrap(perr.PersistenceFailure, "Failed to save transaction", err)
	}

	i.log.Info("push initiated",
		zap.Int64("tenant_id", tenant.ID),
		zap.String("credential_id", cred.CredentialID),
		zap.String("merchant_request_id", p.MerchantRequestID),
		zap.String("checkout_request_id", p.CheckoutRequestID))
	i.events.Emit(pctx, "push.initiated", p.CheckoutRequestID, map[string]any{
		"tenant_id":           tenant.ID,
		"credential_id":       cred.CredentialID,
		"merchant_request_id": p.MerchantRequestID,
		"checkout_request_id": p.CheckoutRequestID,
		"account_reference":   p.AccountReference,
		"amount":              p.Amount.String(),
	})
	return acc.Raw, nil
}
