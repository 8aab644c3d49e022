// services/api-gateway/handlers/router.go
package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Register mounts the gateway-facing notification routes and the
// tenant-facing API on r.
func Register(r *mux.Router, d Deps) {
	if d.Validate == nil {
		d.Validate = NewValidator()
	}

	// gateway notifications, unauthenticated
	r.HandleFunc("/callbackurl", CallbackHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/validationurl", ValidationHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/confirmationurl", ConfirmationHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/resulturl", ResultHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/timeouturl", TimeoutHandler(d)).Methods(http.MethodPost)

	r.HandleFunc("/apps", RegisterAppHandler(d)).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(RequireTenant(d))
	api.HandleFunc("/apps", UpdateAppHandler(d)).Methods(http.MethodPatch)
	api.HandleFunc("/paybills", RegisterPaybillHandler(d)).Methods(http.MethodPost)
	api.HandleFunc("/paybills", ListPaybillsHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/paybills/{credential_id}", UpdatePaybillHandler(d)).Methods(http.MethodPatch)
	api.HandleFunc("/stkpush", STKPushHandler(d)).Methods(http.MethodPost)
	api.HandleFunc("/mpesa/c2b/registerurl", RegisterURLHandler(d)).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{account_reference}", TransactionsHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/all", AllTransactionsHandler(d)).Methods(http.MethodGet)
}
