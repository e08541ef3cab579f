package entity

import (
	"sort"
	"strings"
)

// ModuleSet is a set of capability identifiers.
type ModuleSet struct {
	items map[string]struct{}
}

func NewModuleSet(names ...string) ModuleSet {
	s := ModuleSet{items: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.add(n)
	}
	return s
}

func (s *ModuleSet) add(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if s.items == nil {
		s.items = make(map[string]struct{})
	}
	s.items[name] = struct{}{}
}

// With returns a copy of s that also contains names.
func (s ModuleSet) With(names ...string) ModuleSet {
	out := s.clone()
	for _, n := range names {
		out.add(n)
	}
	return out
}

func (s ModuleSet) Has(name string) bool {
	_, ok := s.items[name]
	return ok
}

func (s ModuleSet) Len() int {
	return len(s.items)
}

func (s ModuleSet) Sorted() []string {
	out := make([]string, 0, len(s.items))
	for n := range s.items {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s ModuleSet) clone() ModuleSet {
	out := ModuleSet{items: make(map[string]struct{}, len(s.items))}
	for n := range s.items {
		out.items[n] = struct{}{}
	}
	return out
}
