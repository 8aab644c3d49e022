package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/example/paybill-gateway/internal/logging"
	perr "github.com/example/paybill-gateway/pkg/errors"
)

// rawLimit bounds upstream payloads carried in errors and logs.
const rawLimit = 500

// PushAccepted is a push the gateway took on. The identifier pair is the only
// key its callback will carry.
type PushAccepted struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
	Raw                 json.RawMessage
}

// classifyPush decodes a push response into exactly one outcome. Checks run
// in a fixed order: body shape, explicit error fields, identifier pair, then
// the business response code.
func classifyPush(status int, body []byte) (*PushAccepted, error) {
	raw := logging.Truncate(string(body), rawLimit)
	if !gjson.ValidBytes(body) {
		return nil, perr.WithUpstream(perr.GatewayProtocolError,
			fmt.Sprintf("gateway returned invalid JSON (status %d)", status),
			perr.Upstream{Raw: raw})
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return nil, perr.WithUpstream(perr.GatewayProtocolError,
			fmt.Sprintf("gateway returned a non-object body (status %d)", status),
			perr.Upstream{Raw: raw})
	}

	if res.Get("errorCode").Exists() || res.Get("requestId").Exists() {
		code := res.Get("errorCode").String()
		if code == "" {
			code = "unknown"
		}
		msg := firstNonEmpty(res.Get("errorMessage").String(), res.Get("error").String(), string(body))
		return nil, perr.WithUpstream(perr.GatewayRejected,
			fmt.Sprintf("gateway error (code %s): %s", code, logging.Truncate(msg, rawLimit)),
			perr.Upstream{Code: code, Description: msg, Raw: raw})
	}

	mid := res.Get("MerchantRequestID").String()
	cid := res.Get("CheckoutRequestID").String()
	if mid == "" || cid == "" {
		return nil, perr.WithUpstream(perr.GatewayProtocolError,
			"invalid push response: missing MerchantRequestID or CheckoutRequestID",
			perr.Upstream{Raw: raw})
	}

	acc := &PushAccepted{
		MerchantRequestID:   mid,
		CheckoutRequestID:   cid,
		ResponseCode:        res.Get("ResponseCode").String(),
		ResponseDescription: res.Get("ResponseDescription").String(),
		CustomerMessage:     res.Get("CustomerMessage").String(),
		Raw:                 json.RawMessage(body),
	}
	if acc.ResponseCode != "0" {
		return nil, perr.WithUpstream(perr.GatewayBusinessError,
			fmt.Sprintf("gateway error (ResponseCode %s): %s. CustomerMessage: %s",
				acc.ResponseCode, acc.ResponseDescription, acc.CustomerMessage),
			perr.Upstream{
				Code:            acc.ResponseCode,
				Description:     acc.ResponseDescription,
				CustomerMessage: acc.CustomerMessage,
				Raw:             raw,
			})
	}
	return acc, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
