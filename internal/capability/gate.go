// Package capability provides CapabilityGate implementations. The gate is a
// client-side guard only; the backend re-checks authorization itself.
package capability

import (
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/pipewatch/internal/interfaces"
)

// Static grants a fixed set of capabilities. Entries may be exact names
// ("news.start") or path.Match patterns ("news.*", "*.stop", "*").
type Static struct {
	mu       sync.RWMutex
	exact    map[string]bool
	patterns []string
}

// NewStatic creates a gate granting the given capabilities
func NewStatic(granted ...string) *Static {
	s := &Static{exact: make(map[string]bool)}
	s.Grant(granted...)
	return s
}

// Grant adds capabilities to the gate
func (s *Static) Grant(granted ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range granted {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if strings.ContainsAny(g, "*?[") {
			if _, err := path.Match(g, ""); err == nil {
				s.patterns = append(s.patterns, g)
			}
			continue
		}
		s.exact[g] = true
	}
}

// Revoke removes exact grants and patterns equal to name
func (s *Static) Revoke(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.exact, name)
	kept := s.patterns[:0]
	for _, p := range s.patterns {
		if p != name {
			kept = append(kept, p)
		}
	}
	s.patterns = kept
}

// HasCapability implements interfaces.CapabilityGate
func (s *Static) HasCapability(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.exact[name] {
		return true
	}
	for _, p := range s.patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Granted returns every grant, sorted
func (s *Static) Granted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.exact)+len(s.patterns))
	for name := range s.exact {
		out = append(out, name)
	}
	out = append(out, s.patterns...)
	sort.Strings(out)
	return out
}

// Func adapts a plain predicate to interfaces.CapabilityGate
type Func func(name string) bool

// HasCapability implements interfaces.CapabilityGate
func (f Func) HasCapability(name string) bool {
	return f(name)
}

// AllowAll returns a gate that grants everything
func AllowAll() interfaces.CapabilityGate {
	return Func(func(string) bool { return true })
}

// DenyAll returns a gate that grants nothing
func DenyAll() interfaces.CapabilityGate {
	return Func(func(string) bool { return false })
}
