package otp

import "sort"

// ExclusionSet is a fixed denylist of digit strings that are obviously not
// passcodes. The zero value excludes nothing.
type ExclusionSet struct {
	values map[string]struct{}
}

// NewExclusionSet builds a set from the given values.
func NewExclusionSet(values ...string) ExclusionSet {
	s := ExclusionSet{values: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.values[v] = struct{}{}
	}
	return s
}

// Contains reports whether s is excluded.
func (e ExclusionSet) Contains(s string) bool {
	_, ok := e.values[s]
	return ok
}

// Len returns the number of excluded values.
func (e ExclusionSet) Len() int {
	return len(e.values)
}

// Union returns a new set holding the values of both sets.
func (e ExclusionSet) Union(values ...string) ExclusionSet {
	out := NewExclusionSet(values...)
	for v := range e.values {
		out.values[v] = struct{}{}
	}
	return out
}

// Values returns the excluded values in sorted order.
func (e ExclusionSet) Values() []string {
	out := make([]string, 0, len(e.values))
	for v := range e.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// placeholders are the literal non-OTP codes listed by the source scripts.
var placeholders = []string{
	"0000", "1111", "2222", "3333", "4444", "5555", "6666", "7777", "8888", "9999",
	"1234", "4321", "0001", "1000",
	"000000", "111111", "123456", "654321", "000001", "100000", "999999",
}

// DefaultExclusions returns the placeholder list plus every repeated-digit
// string and every ascending or descending digit run of length 4 to 6.
func DefaultExclusions() ExclusionSet {
	values := append([]string(nil), placeholders...)
	for n := MinLength; n <= MaxLength; n++ {
		for d := byte('0'); d <= '9'; d++ {
			values = append(values, repeat(d, n))
		}
		for start := 0; start+n <= 10; start++ {
			values = append(values, run(start, n, 1))
		}
		for start := 9; start-n+1 >= 0; start-- {
			values = append(values, run(start, n, -1))
		}
	}
	return NewExclusionSet(values...)
}

func repeat(d byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = d
	}
	return string(b)
}

func run(start, n, step int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + start + i*step)
	}
	return string(b)
}
