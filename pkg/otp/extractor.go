package otp

// Candidate is a digit string provisionally identified as a passcode.
type Candidate struct {
	Value string `json:"value"`
	Rank  int    `json:"rank"`
	Rule  string `json:"rule"`
	Tier  Tier   `json:"tier"`
}

// Len returns the number of digits.
func (c Candidate) Len() int {
	return len(c.Value)
}

// IsZero reports whether c is the empty candidate.
func (c Candidate) IsZero() bool {
	return c.Value == ""
}

// FilterFunc reports whether a surviving candidate should be kept.
type FilterFunc func(c Candidate) bool

// Extractor applies a profile's rules to text dumps. It holds no per-call
// state and may be reused.
type Extractor struct {
	profile    *Profile
	rules      []Rule
	catchAll   Rule
	exclusions ExclusionSet
	filter     FilterFunc
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithFilter adds a candidate filter that runs after exclusion.
func WithFilter(f FilterFunc) Option {
	return func(e *Extractor) {
		e.filter = f
	}
}

// New builds an extractor for the profile. A nil profile means "default".
func New(p *Profile, opts ...Option) (*Extractor, error) {
	if p == nil {
		p = Builtin()[0]
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rules, catchAll, err := BuildRules(p.keywords(), p.phrases())
	if err != nil {
		return nil, err
	}
	e := &Extractor{
		profile:    p,
		rules:      rules,
		catchAll:   catchAll,
		exclusions: p.Exclusions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Profile returns the profile the extractor was built from.
func (e *Extractor) Profile() *Profile {
	return e.profile
}

// Rules returns the ordered rules, catch-all last.
func (e *Extractor) Rules() []Rule {
	return append(append([]Rule(nil), e.rules...), e.catchAll)
}

// Candidates returns the surviving candidates in rule order. Each value
// appears once, at the most trusted rank that produced it.
func (e *Extractor) Candidates(text string) []Candidate {
	if text == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []Candidate
	for _, r := range e.rules {
		out = e.collect(out, seen, r, text)
	}
	if len(out) == 0 {
		out = e.collect(out, seen, e.catchAll, text)
	}
	return out
}

func (e *Extractor) collect(out []Candidate, seen map[string]bool, r Rule, text string) []Candidate {
	for _, m := range r.Pattern.FindAllStringSubmatch(text, -1) {
		if len(m) < 2 {
			continue
		}
		v := normalize(m[1])
		if len(v) < MinLength || len(v) > MaxLength || seen[v] {
			continue
		}
		if e.exclusions.Contains(v) {
			continue
		}
		c := Candidate{Value: v, Rank: r.Rank, Rule: r.Name, Tier: r.Tier}
		if e.filter != nil && !e.filter(c) {
			continue
		}
		seen[v] = true
		out = append(out, c)
	}
	return out
}

// Extract selects the passcode from text. The boolean is false when no
// candidate survives, which is the normal outcome before the code arrives.
func (e *Extractor) Extract(text string) (Candidate, bool) {
	return Select(e.Candidates(text), e.profile.Policy)
}

// Select applies the tie-break policy to candidates in rule order.
func Select(cands []Candidate, policy Policy) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	if policy == PolicyPreferLength {
		for _, want := range []int{4, 6} {
			for _, c := range cands {
				if c.Len() == want {
					return c, true
				}
			}
		}
	}
	return cands[0], true
}
