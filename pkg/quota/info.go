package quota

import (
	"crypto/sha256"
	"encoding/hex"
)

// unlimitedThreshold is the total, in dollars, at or above which a key counts as unlimited.
const unlimitedThreshold = 10_000_000

// Info is the quota snapshot of one external key, in dollars.
type Info struct {
	Remaining float64
	Used      float64
	Total     float64
	TodayUsed float64
	Unlimited bool
	Username  string
	Group     string
}

func newInfo(remaining float64, used float64, total float64) Info {
	return Info{
		Remaining: remaining,
		Used:      used,
		Total:     total,
		Unlimited: total >= unlimitedThreshold,
	}
}

// Fingerprint returns the SHA-256 hex digest used as the cache key.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// MaskKey renders a key for logs: three stars and the last four characters.
func MaskKey(key string) string {
	runes := []rune(key)
	if len(runes) < 4 {
		return "***"
	}
	return "***" + string(runes[len(runes)-4:])
}
