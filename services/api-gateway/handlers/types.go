// services/api-gateway/handlers/types.go
package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/paybill-gateway/internal/domain"
)

type RegisterAppIn struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	CallbackURL string `json:"callback_url" validate:"required,max=512,url"`
}

type UpdateAppIn struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	CallbackURL *string `json:"callback_url" validate:"omitempty,max=512,url"`
}

type AppOut struct {
	Name          string    `json:"name"`
	AccountNumber string    `json:"account_number"`
	APIKey        string    `json:"api_key,omitempty"`
	CallbackURL   *string   `json:"callback_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func appOut(t *domain.Tenant, withKey bool) AppOut {
	out := AppOut{
		Name:          t.Name,
		AccountNumber: t.AccountNumber,
		CallbackURL:   t.CallbackURL,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if withKey {
		out.APIKey = t.APIKey
	}
	return out
}

type RegisterPaybillIn struct {
	Name               string `json:"name" validate:"required,min=1,max=255"`
	ConsumerKey        string `json:"consumer_key" validate:"required"`
	ConsumerSecret     string `json:"consumer_secret" validate:"required"`
	BusinessShortCode  string `json:"business_short_code" validate:"required,numeric,max=20"`
	Passkey            string `json:"passkey" validate:"required"`
	InitiatorName      string `json:"initiator_name"`
	SecurityCredential string `json:"security_credential"`
	Environment        string `json:"environment" validate:"omitempty,oneof=production sandbox"`
}

type UpdatePaybillIn struct {
	Name               *string `json:"name" validate:"omitempty,min=1,max=255"`
	ConsumerKey        *string `json:"consumer_key" validate:"omitempty,min=1"`
	ConsumerSecret     *string `json:"consumer_secret" validate:"omitempty,min=1"`
	BusinessShortCode  *string `json:"business_short_code" validate:"omitempty,numeric,max=20"`
	Passkey            *string `json:"passkey" validate:"omitempty,min=1"`
	InitiatorName      *string `json:"initiator_name"`
	SecurityCredential *string `json:"security_credential"`
	Environment        *string `json:"environment" validate:"omitempty,oneof=production sandbox"`
	IsActive           *bool   `json:"is_active"`
}

type PaybillOut struct {
	CredentialID      string    `json:"credential_id"`
	Name              string    `json:"name"`
	BusinessShortCode string    `json:"business_short_code"`
	Environment       string    `json:"environment"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func paybillOut(c *domain.Credential) PaybillOut {
	return PaybillOut{
		CredentialID:      c.CredentialID,
		Name:              c.Name,
		BusinessShortCode: c.ShortCode,
		Environment:       string(c.Environment),
		IsActive:          c.IsActive,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

type STKPushIn struct {
	CredentialID           string `json:"credential_id" validate:"required"`
	Amount                 int64  `json:"amount" validate:"required,gt=0"`
	PhoneNumber            string `json:"phoneNumber" validate:"required,min=1,max=13"`
	AccountNumber          string `json:"accountNumber" validate:"required,min=1,max=12"`
	TransactionDescription string `json:"transactionDescription"`
}

type RegisterURLIn struct {
	CredentialID    string `json:"credential_id" validate:"required"`
	ConfirmationURL string `json:"ConfirmationURL" validate:"omitempty,url"`
	ValidationURL   string `json:"ValidationURL" validate:"omitempty,url"`
}

type TransactionOut struct {
	ID                int64           `json:"id"`
	AccountReference  string          `json:"account_reference"`
	TransactionNumber string          `json:"transaction_number"`
	TransAmount       decimal.Decimal `json:"trans_amount"`
	FirstName         string          `json:"first_name"`
	PhoneNumber       *string         `json:"phone_number"`
	TransTime         string          `json:"trans_time"`
	FullName          *string         `json:"full_name"`
	PaybillNo         string          `json:"paybill_no"`
}

type TransactionsOut struct {
	Transactions []TransactionOut `json:"transactions"`
}

func transactionsOut(entries []domain.LedgerEntry) TransactionsOut {
	out := TransactionsOut{Transactions: make([]TransactionOut, 0, len(entries))}
	for _, e := range entries {
		out.Transactions = append(out.Transactions, TransactionOut{
			ID:                e.ID,
			AccountReference:  e.AccountReference,
			TransactionNumber: e.TransactionNumber,
			TransAmount:       e.Amount,
			FirstName:         e.FirstName,
			PhoneNumber:       e.PhoneNumber,
			TransTime:         e.TransTime,
			FullName:          e.FullName,
			PaybillNo:         e.ShortCode,
		})
	}
	return out
}

// Ack is what the gateway expects back from every notification endpoint.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var accepted = Ack{ResultCode: 0, ResultDesc: "Accepted"}

type CallbackOut struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorOut struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}
