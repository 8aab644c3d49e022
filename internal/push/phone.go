package push

import (
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// NormalizeMSISDN turns "0712345678", "+254712345678" or "254712345678"
// into the gateway's MSISDN form "254712345678". The region is used for
// numbers written in national format.
func NormalizeMSISDN(raw, region string) (string, error) {
	num := strings.TrimSpace(raw)
	if len(num) == 12 && !strings.HasPrefix(num, "+") && strings.HasPrefix(num, "254") {
		num = "+" + num
	}
	p, err := libphonenumber.Parse(num, region)
	if err != nil {
		return "", fmt.Errorf("phone number %q: %w", raw, err)
	}
	// IsPossibleNumber, not IsValidNumber: bundled metadata lags new prefixes.
	if !libphonenumber.IsPossibleNumber(p) {
		return "", fmt.Errorf("phone number %q is not a possible number", raw)
	}
	return strings.TrimPrefix(libphonenumber.Format(p, libphonenumber.E164), "+"), nil
}
