// Package domain holds the records shared by the registry, the push and
// callback flows and the paybill ledger.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Environment string

const (
	Production Environment = "production"
	Sandbox    Environment = "sandbox"
)

func (e Environment) Valid() bool {
	return e == Production || e == Sandbox
}

type PushStatus string

const (
	StatusPending PushStatus = "Pending"
	StatusDone    PushStatus = "Done"
)

// Tenant is a client application sharing the integration.
type Tenant struct {
	ID            int64
	Name          string
	AccountNumber string
	APIKey        string
	CallbackURL   *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Credential is one merchant configuration owned by a tenant. TenantID is
// fixed at creation.
type Credential struct {
	ID                 int64
	TenantID           int64
	CredentialID       string
	Name               string
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string
	Passkey            string
	InitiatorName      string
	SecurityCredential string
	Environment        Environment
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PendingPush tracks a push between gateway acceptance and its callback.
type PendingPush struct {
	ID                int64
	CredentialRef     int64
	MerchantRequestID string
	CheckoutRequestID string
	PhoneNumber       string
	AccountReference  string
	Amount            decimal.Decimal
	Status            PushStatus
	ResultCode        *int
	ResultDesc        *string
	ReceiptNumber     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LedgerEntry is an inbound paybill payment. TransTime is kept as the
// gateway sent it.
type LedgerEntry struct {
	ID                int64
	CredentialRef     int64
	TransactionNumber string
	Amount            decimal.Decimal
	FirstName         string
	TransTime         string
	AccountReference  string
	ShortCode         string
	PhoneNumber       *string
	FullName          *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Resolution is what the callback handler wrote to a pending push. A nil
// ResultCode means the callback carried none.
type Resolution struct {
	ResultCode    *int
	ResultDesc    string
	ReceiptNumber *string
}
