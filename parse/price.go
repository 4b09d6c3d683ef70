package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// priceRe matches the first currency symbol or code followed by a numeric
// amount, with optional thousands separators.
var priceRe = regexp.MustCompile(`([$€£¥₹]|USD|EUR|GBP|JPY|CAD|AUD)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)

// ParsePrice applies the harvest price policy to raw price text:
// absent text or a "free" marker means free; otherwise the first
// currency symbol and the first following amount are taken. Text with no
// recognizable amount is treated as free rather than an error, and a
// zero amount is free with no price at all.
func ParsePrice(text string) (price *float64, currency string, free bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.Contains(strings.ToLower(trimmed), "free") {
		return nil, "", true
	}

	m := priceRe.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, "", true
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil || amount == 0 {
		return nil, "", true
	}
	return &amount, m[1], false
}
