package giveaway

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const winCodePrefix = "LULZ"

// BuildWinCode assembles a redemption code: fixed prefix, round id, a random
// hex token and a base-36 millisecond timestamp, e.g. LULZ-5-A3F91C-LMN0PQ.
// Uniqueness is the registry's job; this only provides entropy.
func BuildWinCode(roundID int) string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand is the kernel; if it fails, a timestamp still
		// keeps candidates distinct enough for the retry loop.
		return fmt.Sprintf("%s-%d-%06X-%s", winCodePrefix, roundID,
			time.Now().UnixNano()&0xFFFFFF, base36Now())
	}
	return fmt.Sprintf("%s-%d-%s-%s", winCodePrefix, roundID,
		strings.ToUpper(hex.EncodeToString(b)), base36Now())
}

func base36Now() string {
	return strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
}
