// Package locate searches an ordered list of locator descriptors and returns
// the first one that resolves.
package locate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/devicelab-dev/otpcap/pkg/core"
)

// Kind is the attribute a locator matches on.
type Kind string

const (
	KindID       Kind = "id"       // resource-id, suffix match after the package prefix
	KindText     Kind = "text"     // exact text, case-insensitive
	KindContains Kind = "contains" // substring of text, content-desc or hint
	KindDesc     Kind = "desc"     // exact content-desc
	KindHint     Kind = "hint"     // exact hint
	KindCoords   Kind = "coords"   // fixed "x,y" screen position
)

var kinds = map[Kind]bool{
	KindID: true, KindText: true, KindContains: true, KindDesc: true, KindHint: true, KindCoords: true,
}

// Locator is one descriptor, written as "kind=value".
type Locator struct {
	Kind  Kind
	Value string
}

func (l Locator) String() string {
	return string(l.Kind) + "=" + l.Value
}

// Parse parses "kind=value". A value without a known kind prefix is a
// contains locator.
func Parse(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("empty locator")
	}
	if k, v, ok := strings.Cut(s, "="); ok && kinds[Kind(strings.ToLower(strings.TrimSpace(k)))] {
		l := Locator{Kind: Kind(strings.ToLower(strings.TrimSpace(k))), Value: strings.TrimSpace(v)}
		if l.Value == "" {
			return Locator{}, fmt.Errorf("locator %q has no value", s)
		}
		if l.Kind == KindCoords {
			if _, err := l.Point(); err != nil {
				return Locator{}, err
			}
		}
		return l, nil
	}
	return Locator{Kind: KindContains, Value: s}, nil
}

// ParseAll parses every descriptor, failing on the first bad one.
func ParseAll(descs []string) ([]Locator, error) {
	out := make([]Locator, 0, len(descs))
	for _, d := range descs {
		l, err := Parse(d)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// MarshalText implements encoding.TextMarshaler.
func (l Locator) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Locator) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Point returns the position of a coords locator.
func (l Locator) Point() (core.Point, error) {
	xs, ys, ok := strings.Cut(l.Value, ",")
	if !ok {
		return core.Point{}, fmt.Errorf("coords %q: want x,y", l.Value)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(xs))
	y, errY := strconv.Atoi(strings.TrimSpace(ys))
	if errX != nil || errY != nil || x < 0 || y < 0 {
		return core.Point{}, fmt.Errorf("coords %q: want two non-negative integers", l.Value)
	}
	return core.Point{X: x, Y: y}, nil
}

// FirstMatch calls lookup for each locator in order and returns the first
// success with the locator that produced it. When every lookup fails the
// error matches core.ErrLocatorNotFound and lists what was tried.
func FirstMatch[T any](locs []Locator, lookup func(Locator) (T, error)) (T, Locator, error) {
	var zero T
	tried := make([]string, 0, len(locs))
	var lastErr error
	for _, l := range locs {
		v, err := lookup(l)
		if err == nil {
			return v, l, nil
		}
		tried = append(tried, l.String())
		lastErr = err
	}
	return zero, Locator{}, core.ErrLocatorNotFound.WithCause(lastErr).
		WithDetails(map[string]interface{}{"tried": tried}).
		WithMessage(fmt.Sprintf("no locator matched (tried %s)", strings.Join(tried, ", ")))
}
