// services/api-gateway/handlers/payments.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/push"
	perr "github.com/example/paybill-gateway/pkg/errors"
	m "github.com/example/paybill-gateway/pkg/metrics"
)

// STKPushHandler sends a push to the payer's phone and returns the
// gateway's acceptance payload as is.
func STKPushHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() { m.ObserveDuration("api-gateway", "STKPUSH", time.Since(start).Seconds()) }()

		tenant, ok := tenantOf(w, r, d)
		if !ok {
			return
		}
		var in STKPushIn
		if err := decode(r, d.Validate, &in); err != nil {
			m.IncRequest("api-gateway", "FAILED", "STKPUSH_INPUT")
			writeError(w, d.Log, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), d.timeout())
		defer cancel()

		raw, err := d.Pushes.Initiate(ctx, tenant, push.Request{
			CredentialID:    in.CredentialID,
			Amount:          in.Amount,
			PhoneNumber:     in.PhoneNumber,
			AccountNumber:   in.AccountNumber,
			TransactionDesc: in.TransactionDescription,
		})
		if err != nil {
			m.IncRequest("api-gateway", "FAILED", "STKPUSH_"+string(perr.CodeOf(err)))
			if e, ok := perr.As(err); ok && e.Upstream != nil {
				d.Log.Warn("stk push refused",
					zap.String("code", string(e.Code)),
					zap.String("upstream_code", e.Upstream.Code),
					zap.String("upstream_description", e.Upstream.Description))
			}
			writeError(w, d.Log, err)
			return
		}
		m.IncRequest("api-gateway", "SUCCESS", "STKPUSH")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	}
}

// RegisterURLHandler registers confirmation and validation URLs for one of
// the tenant's credentials. Omitted URLs default to this service's own.
func RegisterURLHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantOf(w, r, d)
		if !ok {
			return
		}
		var in RegisterURLIn
		if err := decode(r, d.Validate, &in); err != nil {
			writeError(w, d.Log, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d.timeout())
		defer cancel()

		cred, err := d.Tenants.ResolveCredential(ctx, tenant, in.CredentialID)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		confirmation, validation := in.ConfirmationURL, in.ValidationURL
		if confirmation == "" {
			confirmation = d.URLs.Confirmation
		}
		if validation == "" {
			validation = d.URLs.Validation
		}
		raw, err := d.Gateway.RegisterURLs(ctx, cred, confirmation, validation)
		if err != nil {
			m.IncRequest("api-gateway", "FAILED", "REGISTER_URL")
			writeError(w, d.Log, err)
			return
		}
		m.IncRequest("api-gateway", "SUCCESS", "REGISTER_URL")
		d.Log.Info("c2b urls registered",
			zap.String("credential_id", cred.CredentialID),
			zap.String("short_code", cred.ShortCode),
			zap.String("confirmation_url", confirmation),
			zap.String("validation_url", validation))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	}
}
