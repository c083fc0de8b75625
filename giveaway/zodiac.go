package giveaway

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Signs is the fixed catalogue of the 12 zodiac signs, in the traditional
// order. The wheel draws from this slice and user signs are normalized
// against it.
var Signs = []string{
	"Ariete",
	"Toro",
	"Gemelli",
	"Cancro",
	"Leone",
	"Vergine",
	"Bilancia",
	"Scorpione",
	"Sagittario",
	"Capricorno",
	"Acquario",
	"Pesci",
}

var diacriticsFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeSign maps free text ("  LEONE ", "léone") to the canonical sign
// name, or "" when the text matches none of the 12 signs. It never fails.
func NormalizeSign(s string) string {
	folded, _, err := transform.String(diacriticsFolder, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	if folded == "" {
		return ""
	}
	for _, sign := range Signs {
		if strings.ToLower(sign) == folded {
			return sign
		}
	}
	return ""
}
