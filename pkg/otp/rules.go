// Package otp extracts one-time passcodes from noisy UI text dumps.
//
// Rules are applied from most context-specific to most generic. Every match is
// normalized to a plain digit string, excluded values are dropped, and the
// survivors are ranked by the rule that produced them.
package otp

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	MinLength = 4
	MaxLength = 6
)

// Tier is the trust class of a rule. Lower tiers are more trusted.
type Tier int

const (
	TierKeyword  Tier = iota // label word followed by digits ("OTP: 4821")
	TierPhrase               // instructional phrase followed by digits ("enter 4821")
	TierBare                 // standalone digit run of an exact length
	TierCatchAll             // any 4-6 digit run, used only when nothing else survives
)

func (t Tier) String() string {
	switch t {
	case TierKeyword:
		return "keyword"
	case TierPhrase:
		return "phrase"
	case TierBare:
		return "bare"
	case TierCatchAll:
		return "catch-all"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	for _, v := range []Tier{TierKeyword, TierPhrase, TierBare, TierCatchAll} {
		if v.String() == string(text) {
			*t = v
			return nil
		}
	}
	return fmt.Errorf("unknown rule tier %q", text)
}

// Rule is one compiled pattern. The first capture group holds the passcode.
type Rule struct {
	Name    string
	Tier    Tier
	Rank    int
	Pattern *regexp.Regexp
}

// DefaultKeywords are the label words used by the source scripts.
var DefaultKeywords = []string{"OTP", "verification", "code", "pin", "password"}

// DefaultPhrases are the instruction phrases used by the source scripts.
var DefaultPhrases = []string{"please submit this", "enter", "use", "type"}

// bareLengths is the preference order of the exact-length rules.
var bareLengths = []int{4, 6, 5}

var catchAllPattern = regexp.MustCompile(fmt.Sprintf(`(\d{%d,%d})`, MinLength, MaxLength))

// BuildRules compiles the ordered rule list for the given keywords and
// phrases. Ranks are assigned in order; the catch-all rule is returned
// separately because it only runs when the ordered rules yield nothing.
func BuildRules(keywords, phrases []string) ([]Rule, Rule, error) {
	var rules []Rule
	digits := fmt.Sprintf(`(\d{%d,%d})`, MinLength, MaxLength)

	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + anchor(kw) + `[:\s]*` + digits)
		if err != nil {
			return nil, Rule{}, fmt.Errorf("keyword %q: %w", kw, err)
		}
		rules = append(rules, Rule{Name: "keyword:" + kw, Tier: TierKeyword, Pattern: re})
	}

	for _, ph := range phrases {
		ph = strings.TrimSpace(ph)
		if ph == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + anchor(ph) + `\s*` + digits)
		if err != nil {
			return nil, Rule{}, fmt.Errorf("phrase %q: %w", ph, err)
		}
		rules = append(rules, Rule{Name: "phrase:" + ph, Tier: TierPhrase, Pattern: re})
	}

	for _, n := range bareLengths {
		re := regexp.MustCompile(fmt.Sprintf(`\b(\d{%d})\b`, n))
		rules = append(rules, Rule{Name: fmt.Sprintf("bare:%d", n), Tier: TierBare, Pattern: re})
	}

	for i := range rules {
		rules[i].Rank = i
	}

	catchAll := Rule{
		Name:    "catch-all",
		Tier:    TierCatchAll,
		Rank:    len(rules),
		Pattern: catchAllPattern,
	}
	return rules, catchAll, nil
}

// anchor quotes a literal label and lets any whitespace run inside it match
// line breaks and repeated spaces in the dump.
func anchor(label string) string {
	words := strings.Fields(label)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}

// normalize strips everything but ASCII digits.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
