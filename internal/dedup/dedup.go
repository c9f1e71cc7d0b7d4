// Package dedup fingerprints bank rows so the same movement arriving through
// CSV import and bank sync can be recognised.
//
// The fingerprint is approximate: a bank that reformats a description between
// two fetches produces a different hash and the row is imported twice.
package dedup

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	maxDescription = 200
	maxReference   = 100
)

// Hash returns the hex MD5 of date|amount|description|reference, with the
// amount fixed to two decimals and both texts trimmed, lower-cased and
// truncated.
func Hash(date time.Time, amount decimal.Decimal, description, reference string) string {
	input := strings.Join([]string{
		date.Format(time.DateOnly),
		amount.StringFixed(2),
		normalize(description, maxDescription),
		normalize(reference, maxReference),
	}, "|")
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

func normalize(value string, limit int) string {
	value = strings.ToLower(strings.TrimSpace(value))
	runes := []rune(value)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes)
}

// Window returns the inclusive date range searched for ledger-level matches.
func Window(date time.Time, days int) (time.Time, time.Time) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -days), day.AddDate(0, 0, days)
}
