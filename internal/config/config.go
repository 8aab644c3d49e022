// paybill-gateway/internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	DatabaseURL string
	RedisURL    string

	KafkaBrokers []string
	EventsTopic  string

	AppBaseURL  string
	AdminAPIKey string

	GatewayProductionURL string
	GatewaySandboxURL    string
	GatewayTimeout       time.Duration
	ForwardTimeout       time.Duration
	StatusQueryTimeout   time.Duration

	PhoneRegion   string
	StaleAfter    time.Duration
	SweepInterval time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string
}

// CallbackURLs are the fixed gateway-facing notification endpoints.
type CallbackURLs struct {
	Callback     string
	Validation   string
	Confirmation string
	Result       string
	Timeout      string
}

// Load reads the environment, after an optional .env in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:             getenv("GRPC_ADDR", ":9091"),
		MetricsAddr:          getenv("METRICS_ADDR", ":9101"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		KafkaBrokers:         splitList(os.Getenv("KAFKA_BROKERS")),
		EventsTopic:          getenv("KAFKA_EVENTS_TOPIC", "paybill.events"),
		AppBaseURL:           strings.TrimRight(getenv("APP_BASE_URL", "https://m-pesa.example.com"), "/"),
		AdminAPIKey:          os.Getenv("ADMIN_API_KEY"),
		GatewayProductionURL: withSlash(getenv("GATEWAY_PRODUCTION_URL", "https://api.safaricom.co.ke/")),
		GatewaySandboxURL:    withSlash(getenv("GATEWAY_SANDBOX_URL", "https://sandbox.safaricom.co.ke/")),
		PhoneRegion:          strings.ToUpper(getenv("PHONE_REGION", "KE")),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogFormat:            getenv("LOG_FORMAT", "json"),
		LogFile:              os.Getenv("LOG_FILE"),
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"GATEWAY_TIMEOUT", 30 * time.Second, &c.GatewayTimeout},
		{"FORWARD_TIMEOUT", 30 * time.Second, &c.ForwardTimeout},
		{"STATUS_QUERY_TIMEOUT", 30 * time.Second, &c.StatusQueryTimeout},
		{"STALE_AFTER", 15 * time.Minute, &c.StaleAfter},
		{"SWEEP_INTERVAL", 5 * time.Minute, &c.SweepInterval},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dest = v
	}
	return c, nil
}

func (c *Config) CallbackURLs() CallbackURLs {
	return CallbackURLs{
		Callback:     c.AppBaseURL + "/callbackurl",
		Validation:   c.AppBaseURL + "/validationurl",
		Confirmation: c.AppBaseURL + "/confirmationurl",
		Result:       c.AppBaseURL + "/resulturl",
		Timeout:      c.AppBaseURL + "/timeouturl",
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getDuration(k string, d time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil || out <= 0 {
		return 0, fmt.Errorf("config: %s=%q is not a positive duration", k, v)
	}
	return out, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func withSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
