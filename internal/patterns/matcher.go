package patterns

import (
	"regexp"
	"strings"
)

// Matcher answers whether free text matches an externally configured phrase
// set, keyed by pattern name. Phrase sets are compiled once at construction.
type Matcher struct {
	sets map[string][]*regexp.Regexp
}

// defaultSets cover the phrases the identification workflow consults. They
// are Spanish because that is what customers type; deployments override or
// extend them through configuration.
var defaultSets = map[string][]string{
	"welcome_existing_client": {
		`^1\b`,
		`\bsoy\s+cliente\b`,
		`\bcliente\b`,
		`\bya\s+(me\s+)?atend`,
	},
	"service_intent": {
		`\bver?\s+(mi\s+)?deuda\b`,
		`\bcu[aá]nto\s+debo\b`,
		`\bsaldo\b`,
		`\bpagar\b`,
		`\bcomprobante\b`,
	},
	"welcome_decline": {
		`^no\b`,
		`\bnada\s+m[aá]s\b`,
		`\bgracias,?\s*(chau|adi[oó]s)?$`,
		`^(chau|adi[oó]s)\b`,
	},
	"affirmative": {
		// \b is ASCII-only in RE2 and never fires right after an accented
		// letter, so these sets end on an explicit non-letter boundary.
		`^(s[ií]|dale|ok|okey|claro|exacto|correcto|afirmativo|as[ií]\s+es)([^\p{L}\p{N}]|$)`,
	},
	"negative": {
		`^(no|nop|negativo|para\s+nada)\b`,
	},
	"new_person": {
		`\botra\s+persona\b`,
		`\bnuev[oa]\b`,
		`\balguien\s+m[aá]s\b`,
		`\bregistrar\b`,
	},
	"own_account": {
		`\b(mi|mis)\s+(cuenta|deuda|datos)\b`,
		`\bpropi[oa]\b`,
		`\bsoy\s+yo\b`,
		`\bpara\s+m[ií]([^\p{L}\p{N}]|$)`,
	},
	"other_person": {
		`\botr[oa]\b`,
		`\bno\s+soy\b`,
		`\btercero\b`,
		`\bfamiliar\b`,
	},
	"start_over": {
		`\bempezar\s+de\s+nuevo\b`,
		`\breiniciar\b`,
		`\bcancelar\s+todo\b`,
	},
}

// New returns a matcher with the default phrase sets plus any overrides.
// An override replaces the whole set for its key.
func New(overrides map[string][]string) *Matcher {
	sets := make(map[string][]*regexp.Regexp, len(defaultSets))
	compile := func(key string, exprs []string) {
		compiled := make([]*regexp.Regexp, 0, len(exprs))
		for _, expr := range exprs {
			compiled = append(compiled, regexp.MustCompile(`(?i)`+expr))
		}
		sets[key] = compiled
	}
	for key, exprs := range defaultSets {
		compile(key, exprs)
	}
	for key, exprs := range overrides {
		compile(key, exprs)
	}
	return &Matcher{sets: sets}
}

// Matches reports whether text matches any phrase of the keyed set. Unknown
// keys never match.
func (m *Matcher) Matches(text, patternKey string) bool {
	if m == nil {
		return false
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	for _, re := range m.sets[patternKey] {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}
