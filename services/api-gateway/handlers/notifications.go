// services/api-gateway/handlers/notifications.go
package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/callback"
	perr "github.com/example/paybill-gateway/pkg/errors"
)

// CallbackHandler receives push results from the gateway.
func CallbackHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			writeError(w, d.Log, perr.Wrap(perr.MalformedCallback, "Invalid callback structure", err))
			return
		}
		res, err := d.Callbacks.Handle(r.Context(), body)
		if err != nil {
			if perr.HTTPStatus(perr.CodeOf(err)) < 500 {
				d.Log.Warn("callback rejected", zap.String("code", string(perr.CodeOf(err))), zap.Error(err))
			}
			writeError(w, d.Log, err)
			return
		}
		msg := "Callback received successfully"
		if res.Outcome == callback.AlreadyResolved {
			msg = "Callback already processed"
		}
		writeJSON(w, http.StatusOK, CallbackOut{Status: "success", Message: msg})
	}
}

// ackHandler wraps a ledger webhook: the gateway always gets its
// acknowledgement unless the body could not be read as JSON at all.
func ackHandler(d Deps, name string, fn func(ctx context.Context, body []byte) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err == nil {
			err = fn(r.Context(), body)
		}
		if err != nil && perr.Is(err, perr.MalformedCallback) {
			d.Log.Warn("malformed notification", zap.String("endpoint", name), zap.Error(err))
			writeError(w, d.Log, err)
			return
		}
		if err != nil {
			d.Log.Error("notification handling failed", zap.String("endpoint", name), zap.Error(err))
		}
		writeJSON(w, http.StatusOK, accepted)
	}
}

func ValidationHandler(d Deps) http.HandlerFunc {
	return ackHandler(d, "validation", d.Ledger.Validate)
}

func ConfirmationHandler(d Deps) http.HandlerFunc {
	return ackHandler(d, "confirmation", d.Ledger.Confirm)
}

func ResultHandler(d Deps) http.HandlerFunc {
	return ackHandler(d, "result", d.Ledger.Enrich)
}

func TimeoutHandler(d Deps) http.HandlerFunc {
	return ackHandler(d, "timeout", d.Ledger.Timeout)
}
