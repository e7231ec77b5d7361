// Package normalize turns raw identifiers from either import source into
// canonical comparison keys. It is the only place normalization logic lives;
// callers persist and compare the keys produced here.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var scientificRe = regexp.MustCompile(`^\d+([.,]\d+)?[eE][+-]?\d+$`)

// PolicyNumber reduces a raw policy number to its digit key: scientific
// notation artifacts from spreadsheet exports are expanded, every non-digit
// is dropped, and every zero digit is removed (insurers pad inconsistently,
// so "00-123.045" and "12345" must collide). Total function; empty input
// yields an empty key.
func PolicyNumber(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if scientificRe.MatchString(s) {
		if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64); err == nil {
			s = strconv.FormatFloat(f, 'f', 0, 64)
		}
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '1' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BrokerName lower-cases, folds umlauts and accents to their ASCII digraph
// equivalents and strips everything that is not a letter or digit.
func BrokerName(raw string) string {
	return stripToKey(foldASCII(strings.ToLower(raw)))
}

// AccountHolder normalizes an account holder name. Parenthetical qualifiers
// ("Huber, Anna (geb. Maier)") keep their inner words; only the parentheses
// and delimiters go.
func AccountHolder(raw string) string {
	s := strings.ToLower(raw)
	s = strings.NewReplacer("(", " ", ")", " ").Replace(s)
	return stripToKey(foldASCII(s))
}

var asciiFold = map[rune]string{
	'ä': "ae", 'ö': "oe", 'ü': "ue", 'ß': "ss",
	'á': "a", 'à': "a", 'â': "a", 'å': "a", 'ã': "a",
	'é': "e", 'è': "e", 'ê': "e", 'ë': "e",
	'í': "i", 'ì': "i", 'î': "i", 'ï': "i",
	'ó': "o", 'ò': "o", 'ô': "o", 'õ': "o",
	'ú': "u", 'ù': "u", 'û': "u",
	'ç': "c", 'ñ': "n",
}

func foldASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if rep, ok := asciiFold[r]; ok {
			b.WriteString(rep)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func stripToKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
