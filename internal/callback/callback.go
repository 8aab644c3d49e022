// Package callback correlates asynchronous push results with the pending
// pushes they belong to.
package callback

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/domain"
	perr "github.com/example/paybill-gateway/pkg/errors"
	m "github.com/example/paybill-gateway/pkg/metrics"
)

type Store interface {
	FindPushes(ctx context.Context, merchantRequestID, checkoutRequestID string, limit int) ([]domain.PendingPush, error)
	ResolvePush(ctx context.Context, id int64, res domain.Resolution, at time.Time) (bool, error)
}

type Events interface {
	Emit(ctx context.Context, kind, key string, payload any)
}

type Outcome string

const (
	Resolved        Outcome = "resolved"
	AlreadyResolved Outcome = "already_resolved"
)

type Result struct {
	Outcome Outcome
	Push    domain.PendingPush
}

type Correlator struct {
	store  Store
	events Events
	log    *zap.Logger
	now    func() time.Time
}

func New(s Store, events Events, log *zap.Logger) *Correlator {
	return &Correlator{store: s, events: events, log: log, now: time.Now}
}

// notification is the part of a push callback we act on.
type notification struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        *int
	ResultDesc        string
	ReceiptNumber     *string
}

// parse accepts the wrapped {"Body":{"stkCallback":{...}}} form or a bare
// callback object.
func parse(body []byte) (*notification, error) {
	if !gjson.ValidBytes(body) {
		return nil, perr.New(perr.MalformedCallback, "Invalid callback structure")
	}
	root := gjson.ParseBytes(body)
	node := root.Get("Body.stkCallback")
	if !node.IsObject() {
		node = root
	}
	if !node.IsObject() {
		return nil, perr.New(perr.MalformedCallback, "Invalid callback structure")
	}
	n := &notification{
		MerchantRequestID: node.Get("MerchantRequestID").String(),
		CheckoutRequestID: node.Get("CheckoutRequestID").String(),
		ResultDesc:        node.Get("ResultDesc").String(),
	}
	if n.MerchantRequestID == "" || n.CheckoutRequestID == "" {
		return nil, perr.New(perr.MalformedCallback, "Missing MerchantRequestID or CheckoutRequestID")
	}
	if rc := node.Get("ResultCode"); rc.Exists() && rc.Type != gjson.Null {
		code := int(rc.Int())
		n.ResultCode = &code
	}
	if r := node.Get(`CallbackMetadata.Item.#(Name=="MpesaReceiptNumber").Value`); r.Exists() && r.String() != "" {
		receipt := r.String()
		n.ReceiptNumber = &receipt
	}
	return n, nil
}

// Handle applies one push callback. Only the exact identifier pair matches.
// A callback for a push that is already Done changes nothing.
func (c *Correlator) Handle(ctx context.Context, body []byte) (*Result, error) {
	n, err := parse(body)
	if err != nil {
		m.IncCallback("stk", "malformed")
		return nil, err
	}
	log := c.log.With(
		zap.String("merchant_request_id", n.MerchantRequestID),
		zap.String("checkout_request_id", n.CheckoutRequestID))

	matches, err := c.store.FindPushes(ctx, n.MerchantRequestID, n.CheckoutRequestID, 2)
	if err != nil {
		m.IncCallback("stk", "error")
		return nil, perr.Wrap(perr.Internal, "lookup pending push", err)
	}
	switch len(matches) {
	case 0:
		m.IncCallback("stk", "unknown")
		log.Warn("callback for unknown transaction")
		return nil, perr.New(perr.UnknownTransaction, "Transaction not found")
	case 1:
	default:
		m.IncCallback("stk", "ambiguous")
		log.Error("callback matches more than one pending push")
		return nil, perr.New(perr.AmbiguousTransaction, "Transaction identifiers are not unique")
	}

	p := matches[0]
	if p.Status == domain.StatusDone {
		m.IncCallback("stk", "duplicate")
		log.Info("duplicate callback ignored", zap.Int64("push_id", p.ID))
		return &Result{Outcome: AlreadyResolved, Push: p}, nil
	}

	res := domain.Resolution{ResultCode: n.ResultCode, ResultDesc: n.ResultDesc, ReceiptNumber: n.ReceiptNumber}
	at := c.now().UTC()
	ok, err := c.store.ResolvePush(ctx, p.ID, res, at)
	if err != nil {
		m.IncCallback("stk", "error")
		return nil, perr.Wrap(perr.Internal, "resolve pending push", err)
	}
	if !ok {
		// lost the race against a concurrent duplicate
		m.IncCallback("stk", "duplicate")
		log.Info("duplicate callback ignored", zap.Int64("push_id", p.ID))
		return &Result{Outcome: AlreadyResolved, Push: p}, nil
	}

	p.Status = domain.StatusDone
	p.ResultCode = res.ResultCode
	p.ResultDesc = &res.ResultDesc
	if res.ReceiptNumber != nil {
		p.ReceiptNumber = res.ReceiptNumber
	}
	p.UpdatedAt = at

	m.IncCallback("stk", "resolved")
	log.Info("push resolved", zap.Int64("push_id", p.ID), zap.Intp("result_code", n.ResultCode))
	c.events.Emit(ctx, "push.resolved", p.CheckoutRequestID, map[string]any{
		"merchant_request_id": p.MerchantRequestID,
		"checkout_request_id": p.CheckoutRequestID,
		"result_code":         n.ResultCode,
		"result_desc":         n.ResultDesc,
		"receipt_number":      p.ReceiptNumber,
	})
	return &Result{Outcome: Resolved, Push: p}, nil
}
