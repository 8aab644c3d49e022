// services/api-gateway/handlers/apps.go
package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/paybill-gateway/internal/domain"
	"github.com/example/paybill-gateway/internal/registry"
)

func RegisterAppHandler(d Deps) http.HandlerFunc {
	return requireAdmin(d, func(w http.ResponseWriter, r *http.Request) {
		var in RegisterAppIn
		if err := decode(r, d.Validate, &in); err != nil {
			writeError(w, d.Log, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d.timeout())
		defer cancel()

		cb := in.CallbackURL
		t, err := d.Tenants.RegisterTenant(ctx, in.Name, &cb)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, appOut(t, true))
	})
}

func UpdateAppHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantOf(w, r, d)
		if !ok {
			return
		}
		var in UpdateAppIn
		if err := decode(r, d.Validate, &in); err != nil {
			writeError(w, d.Log, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d.timeout())
		defer cancel()

		t, err := d.Tenants.UpdateTenant(ctx, tenant, registry.TenantPatch{Name: in.Name, CallbackURL: in.CallbackURL})
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, appOut(t, true))
	}
}

func RegisterPaybillHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantOf(w, r, d)
		if !ok {
			return
		}
		var in RegisterPaybillIn
		if err := decode(r, d.Validate, &in); err != nil {
			writeError(w, d.Log, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d.timeout())
		defer cancel()

		c, err := d.Tenants.RegisterCredential(ctx, tenant, registry.CredentialInput{
			Name:               in.Name,
			ConsumerKey:        in.ConsumerKey,
			ConsumerSecret:     in.ConsumerSecret,
			ShortCode:          in.BusinessShortCode,
			Passkey:            in.Passkey,
			InitiatorName:      in.InitiatorName,
			SecurityCredential: in.SecurityCredential,
			Environment:        domain.Environment(in.Environment),
		})
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, paybillOut(c))
	}
}

func ListPaybillsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantOf(w, r, d)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d.timeout())
		defer cancel()

		creds, err := d.Tenants.ListCredentials(ctx, tenant)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		out := make([]PaybillOut, 0, len(creds))
		for i := range creds {
			out = append(out, paybillOut(&creds[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func UpdatePaybillHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantOf(w, r, d)
		if !ok {
			return
		}
		var in UpdatePaybillIn
		if err := decode(r, d.Validate, &in); err != nil {
			writeError(w, d.Log, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d.timeout())
		defer cancel()

		p := registry.CredentialPatch{
			Name:               in.Name,
			ConsumerKey:        in.ConsumerKey,
			ConsumerSecret:     in.ConsumerSecret,
			ShortCode:          in.BusinessShortCode,
			Passkey:            in.Passkey,
			InitiatorName:      in.InitiatorName,
			SecurityCredential: in.SecurityCredential,
			IsActive:           in.IsActive,
		}
		if in.Environment != nil {
			env := domain.Environment(*in.Environment)
			p.Environment = &env
		}
		c, err := d.Tenants.UpdateCredential(ctx, tenant, mux.Vars(r)["credential_id"], p)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, paybillOut(c))
	}
}
