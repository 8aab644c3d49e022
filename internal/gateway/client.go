// Package gateway talks to the mobile-money gateway: OAuth tokens, push
// initiation, transaction status queries and C2B URL registration.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/domain"
	"github.com/example/paybill-gateway/internal/logging"
	perr "github.com/example/paybill-gateway/pkg/errors"
	m "github.com/example/paybill-gateway/pkg/metrics"
)

// tokenSkew is taken off expires_in so a cached token is never used at its edge.
const tokenSkew = 60 * time.Second

type Options struct {
	ProductionURL string
	SandboxURL    string
	Timeout       time.Duration
}

type Client struct {
	http   *resty.Client
	opts   Options
	tokens TokenCache
	log    *zap.Logger
	now    func() time.Time
}

// New builds a client. tokens may be nil to fetch a token for every call.
func New(opts Options, tokens TokenCache, log *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		http:   resty.New().SetTimeout(opts.Timeout).SetHeader("Accept", "application/json"),
		opts:   opts,
		tokens: tokens,
		log:    log,
		now:    time.Now,
	}
}

func (c *Client) baseURL(env domain.Environment) string {
	if env == domain.Sandbox {
		return c.opts.SandboxURL
	}
	return c.opts.ProductionURL
}

// AccessToken returns a bearer token for the credential's consumer pair,
// from cache when one is still valid.
func (c *Client) AccessToken(ctx context.Context, consumerKey, consumerSecret string, env domain.Environment) (string, error) {
	key := tokenKey(consumerKey, consumerSecret, env)
	if c.tokens != nil {
		tok, ok, err := c.tokens.Get(ctx, key)
		if err != nil {
			c.log.Warn("token cache read failed", zap.Error(err))
		} else if ok {
			return tok, nil
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(consumerKey, consumerSecret).
		SetQueryParam("grant_type", "client_credentials").
		Get(c.baseURL(env) + "oauth/v1/generate")
	if err != nil {
		m.IncGateway("oauth", "unreachable")
		return "", perr.Wrap(perr.GatewayUnreachable, "OAuth request failed", err)
	}
	if !resp.IsSuccess() {
		m.IncGateway("oauth", "rejected")
		return "", perr.WithUpstream(perr.AuthError,
			fmt.Sprintf("OAuth failed: status %d", resp.StatusCode()),
			perr.Upstream{Code: fmt.Sprint(resp.StatusCode()), Raw: logging.Truncate(resp.String(), rawLimit)})
	}
	res := gjson.ParseBytes(resp.Body())
	token := res.Get("access_token").String()
	if token == "" {
		m.IncGateway("oauth", "protocol_error")
		return "", perr.WithUpstream(perr.AuthError, "OAuth failed: no access_token in response",
			perr.Upstream{Raw: logging.Truncate(resp.String(), rawLimit)})
	}
	m.IncGateway("oauth", "ok")

	if c.tokens != nil {
		if ttl := time.Duration(res.Get("expires_in").Int())*time.Second - tokenSkew; ttl > 0 {
			if err := c.tokens.Set(ctx, key, token, ttl); err != nil {
				c.log.Warn("token cache write failed", zap.Error(err))
			}
		}
	}
	return token, nil
}

type PushRequest struct {
	Amount           int64
	PhoneNumber      string
	AccountReference string
	TransactionDesc  string
	CallbackURL      string
}

// InitiatePush sends a paybill push for cred and classifies the answer.
func (c *Client) InitiatePush(ctx context.Context, cred *domain.Credential, req PushRequest) (*PushAccepted, error) {
	token, err := c.AccessToken(ctx, cred.ConsumerKey, cred.ConsumerSecret, cred.Environment)
	if err != nil {
		return nil, err
	}
	ts := Timestamp(c.now())
	payload := map[string]any{
		"BusinessShortCode": cred.ShortCode,
		"Password":          Password(cred.ShortCode, cred.Passkey, ts),
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount,
		"PartyA":            req.PhoneNumber,
		"PartyB":            cred.ShortCode,
		"PhoneNumber":       req.PhoneNumber,
		"CallBackURL":       req.CallbackURL,
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.TransactionDesc,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(payload).
		Post(c.baseURL(cred.Environment) + "mpesa/stkpush/v1/processrequest")
	if err != nil {
		m.IncGateway("stkpush", "unreachable")
		c.log.Warn("push transport failure", zap.String("short_code", cred.ShortCode), zap.Error(err))
		return nil, perr.Wrap(perr.GatewayUnreachable, "network error calling gateway", err)
	}

	acc, err := classifyPush(resp.StatusCode(), resp.Body())
	if err != nil {
		m.IncGateway("stkpush", strings.ToLower(string(perr.CodeOf(err))))
		c.log.Warn("push refused",
			zap.String("short_code", cred.ShortCode),
			zap.Int("status", resp.StatusCode()),
			zap.String("kind", string(perr.CodeOf(err))),
			zap.String("body", logging.Truncate(resp.String(), rawLimit)))
		return nil, err
	}
	m.IncGateway("stkpush", "ok")
	return acc, nil
}

// QueryStatus asks the gateway for the status of a transaction. The answer
// arrives later on resultURL.
func (c *Client) QueryStatus(ctx context.Context, cred *domain.Credential, transactionID, resultURL, timeoutURL string) (json.RawMessage, error) {
	payload := map[string]any{
		"Initiator":          cred.InitiatorName,
		"SecurityCredential": cred.SecurityCredential,
		"CommandID":          "TransactionStatusQuery",
		"TransactionID":      transactionID,
		"PartyA":             cred.ShortCode,
		"IdentifierType":     "4",
		"ResultURL":          resultURL,
		"QueueTimeOutURL":    timeoutURL,
		"Remarks":            "Transaction status query",
		"Occasion":           "Query",
	}
	return c.postJSON(ctx, cred, "statusquery", "mpesa/transactionstatus/v1/query", payload)
}

// RegisterURLs registers the confirmation and validation URLs for cred's
// short code.
func (c *Client) RegisterURLs(ctx context.Context, cred *domain.Credential, confirmationURL, validationURL string) (json.RawMessage, error) {
	payload := map[string]any{
		"ShortCode":       cred.ShortCode,
		"ResponseType":    "Completed",
		"ConfirmationURL": confirmationURL,
		"ValidationURL":   validationURL,
	}
	return c.postJSON(ctx, cred, "registerurl", "mpesa/c2b/v2/registerurl", payload)
}

func (c *Client) postJSON(ctx context.Context, cred *domain.Credential, op, path string, payload any) (json.RawMessage, error) {
	token, err := c.AccessToken(ctx, cred.ConsumerKey, cred.ConsumerSecret, cred.Environment)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(payload).
		Post(c.baseURL(cred.Environment) + path)
	if err != nil {
		m.IncGateway(op, "unreachable")
		return nil, perr.Wrap(perr.GatewayUnreachable, op+" request failed", err)
	}
	body := logging.Truncate(resp.String(), rawLimit)
	if !resp.IsSuccess() {
		m.IncGateway(op, "rejected")
		return nil, perr.WithUpstream(perr.GatewayRejected,
			fmt.Sprintf("%s failed (status %d): %s", op, resp.StatusCode(), body),
			perr.Upstream{Code: fmt.Sprint(resp.StatusCode()), Raw: body})
	}
	if !gjson.ValidBytes(resp.Body()) {
		m.IncGateway(op, "protocol_error")
		return nil, perr.WithUpstream(perr.GatewayProtocolError, op+" returned invalid JSON", perr.Upstream{Raw: body})
	}
	m.IncGateway(op, "ok")
	return json.RawMessage(resp.Body()), nil
}
