package identity

import (
	"regexp"
	"strconv"
	"strings"
)

// dniLikeFloor: a bare number at or above this, with no surrounding words, is
// almost certainly a document number, not pesos.
const dniLikeFloor = 1_000_000

var amountRe = regexp.MustCompile(`\$?\s*(\d{1,3}(?:\.\d{3})+(?:,\d{1,2})?|\d+(?:[.,]\d{1,2})?)`)

// AmountGuard filters monetary-amount extraction so a DNI typed during
// identification is never mistaken for a payment amount.
type AmountGuard struct{}

// ExtractAmount pulls a payment amount from the turn text, applying the
// guard rules first:
//   - extraction is skipped entirely while the conversation is on an
//     identifying step or the customer is not yet identified;
//   - a purely numeric message at or above the DNI-like floor is discarded.
func (AmountGuard) ExtractAmount(text string, conv Context) (float64, bool) {
	if conv.Identification.Step.IsIdentifying() || !conv.Identification.CustomerIdentified {
		return 0, false
	}

	amount, ok := parseAmount(text)
	if !ok {
		return 0, false
	}

	if amount >= dniLikeFloor && purelyNumeric(text) {
		return 0, false
	}
	return amount, true
}

// parseAmount finds the first number in the text, accepting Argentine
// thousand-dot / decimal-comma formatting as well as plain digits.
func parseAmount(text string) (float64, bool) {
	match := amountRe.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	raw := match[1]
	if strings.Contains(raw, ".") && strings.Contains(raw, ",") {
		// 1.234.567,89 style
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	} else if strings.Count(raw, ".") > 1 {
		raw = strings.ReplaceAll(raw, ".", "")
	} else if strings.Contains(raw, ",") {
		raw = strings.Replace(raw, ",", ".", 1)
	} else if dotIdx := strings.Index(raw, "."); dotIdx != -1 && len(raw)-dotIdx-1 == 3 {
		// single dot followed by exactly three digits reads as a
		// thousands separator in this locale
		raw = strings.ReplaceAll(raw, ".", "")
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}

// purelyNumeric reports whether the message is only a number, with no
// surrounding words.
func purelyNumeric(text string) bool {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "$")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' || r == ',':
		default:
			return false
		}
	}
	return true
}
