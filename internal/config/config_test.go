package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "METRICS_ADDR", "APP_BASE_URL", "KAFKA_BROKERS", "GATEWAY_TIMEOUT", "FORWARD_TIMEOUT", "PHONE_REGION"} {
		t.Setenv(k, "")
	}

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, ":9101", c.MetricsAddr)
	assert.Equal(t, "https://m-pesa.example.com", c.AppBaseURL)
	assert.Empty(t, c.KafkaBrokers)
	assert.Equal(t, 30*time.Second, c.GatewayTimeout)
	assert.Equal(t, 30*time.Second, c.ForwardTimeout)
	assert.Equal(t, "KE", c.PhoneRegion)
	assert.Equal(t, "https://sandbox.safaricom.co.ke/", c.GatewaySandboxURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_BASE_URL", "https://pay.example.org/")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("FORWARD_TIMEOUT", "5s")
	t.Setenv("GATEWAY_SANDBOX_URL", "http://127.0.0.1:9999")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.org", c.AppBaseURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, 5*time.Second, c.ForwardTimeout)
	assert.Equal(t, "http://127.0.0.1:9999/", c.GatewaySandboxURL)

	urls := c.CallbackURLs()
	assert.Equal(t, "https://pay.example.org/callbackurl", urls.Callback)
	assert.Equal(t, "https://pay.example.org/confirmationurl", urls.Confirmation)
	assert.Equal(t, "https://pay.example.org/timeouturl", urls.Timeout)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("STALE_AFTER", "soon")
	_, err := Load()
	assert.Error(t, err)
}
