package giveaway

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
)

func TestBuildWinCodeFormat(t *testing.T) {
	re := regexp.MustCompile(`^LULZ-7-[0-9A-F]{6}-[0-9A-Z]+$`)
	code := BuildWinCode(7)
	if !re.MatchString(code) {
		t.Fatalf("code %q does not match %s", code, re)
	}
}

func TestBuildWinCodeCarriesRoundID(t *testing.T) {
	for _, id := range []int{1, 12, 340} {
		code := BuildWinCode(id)
		parts := strings.Split(code, "-")
		if len(parts) != 4 {
			t.Fatalf("code %q has %d segments, want 4", code, len(parts))
		}
		if parts[0] != "LULZ" || parts[1] != strconv.Itoa(id) {
			t.Fatalf("code %q does not embed round %d", code, id)
		}
	}
}

func TestBuildWinCodeEntropy(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		code := BuildWinCode(5)
		if seen[code] {
			t.Fatalf("duplicate code %q after %d draws", code, i+1)
		}
		seen[code] = true
	}
}
