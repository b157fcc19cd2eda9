package mpesa

import (
	"encoding/base64"
	"time"
)

const timestampLayout = "20060102150405"

// eat is used when the tz database is unavailable in the runtime image.
var eat = time.FixedZone("EAT", 3*60*60)

// LoadLocation resolves name, falling back to a fixed UTC+3 zone.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return eat
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return eat
	}
	return loc
}

// Timestamp formats t as yyyyMMddHHmmss in loc.
func Timestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(timestampLayout)
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}
