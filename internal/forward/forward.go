// Package forward relays gateway notifications to tenant webhooks.
package forward

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/logging"
	m "github.com/example/paybill-gateway/pkg/metrics"
)

type Forwarder struct {
	http *resty.Client
	log  *zap.Logger
}

func New(timeout time.Duration, log *zap.Logger) *Forwarder {
	return &Forwarder{
		http: resty.New().SetTimeout(timeout),
		log:  log,
	}
}

// Forward posts body to url byte for byte. Any non-2xx answer is an error.
func (f *Forwarder) Forward(ctx context.Context, url string, body []byte) error {
	resp, err := f.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		m.IncForward("unreachable")
		return fmt.Errorf("forward to %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		m.IncForward("rejected")
		return fmt.Errorf("forward to %s: status %d: %s", url, resp.StatusCode(), logging.Truncate(resp.String(), 200))
	}
	m.IncForward("ok")
	f.log.Debug("forwarded to tenant", zap.String("url", url), zap.Int("status", resp.StatusCode()))
	return nil
}
