package gateway

import (
	"encoding/base64"
	"time"
)

const timestampLayout = "20060102150405"

var nairobi = loadNairobi()

func loadNairobi() *time.Location {
	if loc, err := time.LoadLocation("Africa/Nairobi"); err == nil {
		return loc
	}
	return time.FixedZone("EAT", 3*60*60)
}

// Timestamp formats t in gateway local time as yyyyMMddHHmmss.
func Timestamp(t time.Time) string {
	return t.In(nairobi).Format(timestampLayout)
}

// Password is base64(shortCode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}
