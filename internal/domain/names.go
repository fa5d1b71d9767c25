package domain

import "sort"

// NameSet is a set of normalized contact names.
type NameSet map[string]struct{}

// NewNameSet builds a set from raw names, normalizing each and dropping blanks.
func NewNameSet(names ...string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts the normalized form of name.
func (s NameSet) Add(name string) {
	if n := NormalizeName(name); n != "" {
		s[n] = struct{}{}
	}
}

// Has reports whether the normalized form of name is in the set.
func (s NameSet) Has(name string) bool {
	_, ok := s[NormalizeName(name)]
	return ok
}

// Sorted returns the members in lexical order.
func (s NameSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
