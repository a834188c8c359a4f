package otp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devicelab-dev/otpcap/pkg/core"
)

// Policy decides which surviving candidate is selected.
type Policy int

const (
	// PolicyPreferLength picks the first 4-digit candidate, else the first
	// 6-digit candidate, else the first candidate in rule order.
	PolicyPreferLength Policy = iota
	// PolicyFirstMatch picks the first candidate in rule order.
	PolicyFirstMatch
)

func (p Policy) String() string {
	switch p {
	case PolicyPreferLength:
		return "prefer-length"
	case PolicyFirstMatch:
		return "first-match"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "prefer-length":
		*p = PolicyPreferLength
	case "first-match":
		*p = PolicyFirstMatch
	default:
		return fmt.Errorf("unknown policy %q (want prefer-length or first-match)", string(text))
	}
	return nil
}

// Profile bundles the tuning of one target application. A nil Keywords or
// Phrases slice means the defaults; an empty Exclude means DefaultExclusions.
type Profile struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Keywords    []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Phrases     []string `yaml:"phrases,omitempty" json:"phrases,omitempty"`
	Exclude     []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	ExcludeAlso []string `yaml:"excludeAlso,omitempty" json:"excludeAlso,omitempty"`
	Policy      Policy   `yaml:"policy" json:"policy"`
	// Filter is a JavaScript expression evaluated per candidate.
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`
	// Deviation explains how this profile departs from the default policy.
	Deviation string `yaml:"deviation,omitempty" json:"deviation,omitempty"`
}

// Exclusions resolves the exclusion set of the profile.
func (p *Profile) Exclusions() ExclusionSet {
	var set ExclusionSet
	if len(p.Exclude) > 0 {
		set = NewExclusionSet(p.Exclude...)
	} else {
		set = DefaultExclusions()
	}
	return set.Union(p.ExcludeAlso...)
}

func (p *Profile) keywords() []string {
	if p.Keywords == nil {
		return DefaultKeywords
	}
	return p.Keywords
}

func (p *Profile) phrases() []string {
	if p.Phrases == nil {
		return DefaultPhrases
	}
	return p.Phrases
}

// IsDeviation reports whether the profile departs from the dominant
// prefer-4-then-6 policy or carries its own exclusion list.
func (p *Profile) IsDeviation() bool {
	return p.Deviation != "" || p.Policy != PolicyPreferLength || len(p.Exclude) > 0
}

// Validate checks the profile for obvious mistakes.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return core.ErrInvalidConfig.WithMessage("profile name is required")
	}
	for _, v := range append(append([]string(nil), p.Exclude...), p.ExcludeAlso...) {
		if normalize(v) != v || len(v) < MinLength || len(v) > MaxLength {
			return core.ErrInvalidConfig.WithMessage(
				fmt.Sprintf("profile %s: exclusion %q is not a %d-%d digit string", p.Name, v, MinLength, MaxLength))
		}
	}
	return nil
}

// excludeFirstMatch is the shorter list used by the one script that selects
// the first surviving candidate.
var excludeFirstMatch = []string{
	"0000", "1111", "1234", "12345", "123456",
	"9999", "8888", "7777", "6666", "5555",
	"000000", "111111", "222222", "333333",
	"0123", "01234", "012345",
}

// Builtin returns the built-in profiles. Each call returns fresh copies.
func Builtin() []*Profile {
	return []*Profile{
		{
			Name:        "default",
			Description: "prefer 4-digit, then 6-digit candidates; full exclusion set",
			Policy:      PolicyPreferLength,
		},
		{
			Name:        "first-match",
			Description: "first surviving candidate in rule order; short exclusion list",
			Exclude:     excludeFirstMatch,
			Policy:      PolicyFirstMatch,
			Deviation:   "selects the first candidate instead of preferring 4 then 6 digits, and excludes fewer placeholders",
		},
	}
}

// FindProfile looks a profile up by name. Custom profiles shadow built-ins.
func FindProfile(name string, custom []*Profile) (*Profile, error) {
	if name == "" {
		name = "default"
	}
	for _, p := range custom {
		if p.Name == name {
			return p, nil
		}
	}
	for _, p := range Builtin() {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, core.ErrUnknownProfile.WithDetails(map[string]interface{}{
		"profile":   name,
		"available": ProfileNames(custom),
	}).WithMessage(fmt.Sprintf("unknown extraction profile %q", name))
}

// ProfileNames lists built-in and custom profile names, sorted and unique.
func ProfileNames(custom []*Profile) []string {
	seen := map[string]bool{}
	var names []string
	for _, p := range append(Builtin(), custom...) {
		if !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names
}
