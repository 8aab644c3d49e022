// services/api-gateway/handlers/transactions.go
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	perr "github.com/example/paybill-gateway/pkg/errors"
)

func credentialParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.URL.Query().Get("credential_id"))
	if id == "" {
		return "", perr.New(perr.InvalidInput, "credential_id query parameter is required")
	}
	return id, nil
}

// TransactionsHandler lists ledger entries for one bill reference.
func TransactionsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantOf(w, r, d)
		if !ok {
			return
		}
		credID, err := credentialParam(r)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d.timeout())
		defer cancel()

		entries, err := d.Ledger.Transactions(ctx, tenant, credID, mux.Vars(r)["account_reference"])
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, transactionsOut(entries))
	}
}

func AllTransactionsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantOf(w, r, d)
		if !ok {
			return
		}
		credID, err := credentialParam(r)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d.timeout())
		defer cancel()

		entries, err := d.Ledger.All(ctx, tenant, credID)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, transactionsOut(entries))
	}
}
