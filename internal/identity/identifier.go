package identity

import (
	"regexp"
	"strings"
	"unicode"
)

// IdentifierKind classifies what the normalizer extracted.
type IdentifierKind string

const (
	IdentifierCUIT IdentifierKind = "cuit"
	IdentifierDNI  IdentifierKind = "dni"
)

// Extraction is the result of pulling an identifier out of free text. When the
// user typed a name alongside the number ("2259863 Pedrozo Adela") the name is
// captured so the separate verification turn can be skipped.
type Extraction struct {
	Identifier   string
	Kind         IdentifierKind
	ProvidedName string
}

var (
	cuitRe     = regexp.MustCompile(`\d{2}-?\d{8}-?\d`)
	digitRunRe = regexp.MustCompile(`\d{6,11}`)
	stripRe    = regexp.MustCompile(`[\s.\-]+`)
)

// ExtractIdentifier normalizes a DNI, client number or CUIT/CUIL out of free
// text. Priority: CUIT pattern, then a standalone 6-11 digit run, then the
// whole input stripped of separators. Returns ErrInvalidIdentifierFormat when
// nothing plausible is present.
func ExtractIdentifier(text string) (Extraction, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Extraction{}, ErrInvalidIdentifierFormat
	}

	if loc := firstStandalone(trimmed, cuitRe); loc != nil {
		digits := stripRe.ReplaceAllString(trimmed[loc[0]:loc[1]], "")
		if len(digits) == 11 {
			return Extraction{
				Identifier:   digits,
				Kind:         IdentifierCUIT,
				ProvidedName: providedName(trimmed, loc),
			}, nil
		}
	}

	if loc := firstStandalone(trimmed, digitRunRe); loc != nil {
		return Extraction{
			Identifier:   trimmed[loc[0]:loc[1]],
			Kind:         IdentifierDNI,
			ProvidedName: providedName(trimmed, loc),
		}, nil
	}

	// Short client numbers are legal, but only when the whole message is the
	// number: stripped of separators, nothing but digits may remain.
	stripped := stripRe.ReplaceAllString(trimmed, "")
	if len(stripped) >= 1 && len(stripped) <= 11 && allDigits(stripped) {
		return Extraction{Identifier: stripped, Kind: IdentifierDNI}, nil
	}

	return Extraction{}, ErrInvalidIdentifierFormat
}

// firstStandalone returns the first match not glued to more digits on either
// side, so an overlong number is not silently truncated to its first digits.
func firstStandalone(s string, re *regexp.Regexp) []int {
	for _, loc := range re.FindAllStringIndex(s, -1) {
		if standalone(s, loc) {
			return loc
		}
	}
	return nil
}

func standalone(s string, loc []int) bool {
	if loc[0] > 0 && isDigit(rune(s[loc[0]-1])) {
		return false
	}
	if loc[1] < len(s) && isDigit(rune(s[loc[1]])) {
		return false
	}
	return true
}

// fillerWords are tokens around an identifier that are part of the phrasing,
// not the person's name ("mi dni es 22598630, gracias").
var fillerWords = map[string]struct{}{
	"mi": {}, "dni": {}, "cuit": {}, "cuil": {}, "es": {}, "el": {},
	"numero": {}, "número": {}, "nro": {}, "cliente": {}, "de": {},
	"gracias": {}, "hola": {}, "soy": {}, "me": {}, "llamo": {}, "mí": {},
}

// providedName returns the non-identifier remainder when it looks like a name
// (at least two letters after filler words are dropped), empty otherwise.
func providedName(s string, loc []int) string {
	rest := strings.TrimSpace(s[:loc[0]] + " " + s[loc[1]:])

	var kept []string
	letters := 0
	for _, field := range strings.Fields(rest) {
		word := strings.ToLower(strings.Trim(field, ".,;:"))
		if _, filler := fillerWords[word]; filler {
			continue
		}
		kept = append(kept, field)
		for _, r := range field {
			if unicode.IsLetter(r) {
				letters++
			}
		}
	}
	if letters < 2 {
		return ""
	}
	return strings.Join(kept, " ")
}

func allDigits(s string) bool {
	for _, r := range s {
		if !isDigit(r) {
			return false
		}
	}
	return s != ""
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
