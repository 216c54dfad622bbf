package metacache

import "strings"

// AttributeMatcher describes which attributes a caller asked for, or
// which attributes a cached Info actually carries. The caches never look
// past this interface; what "an attribute" means is entirely up to the
// caller, matching how gvfs treats its own attribute matcher as an
// external, opaque contract.
//
// A cache hit requires Subtract(stored) to be empty: every attribute the
// request names must already be covered by what's stored.
type AttributeMatcher struct {
	all        bool
	namespaces map[string]struct{} // "standard" means "standard::*"
	exact      map[string]struct{} // "unix::mode"
}

// NewAttributeMatcher parses a comma-separated attribute spec such as
// "standard::*,unix::mode,time::*". An empty string or "*" matches
// everything.
func NewAttributeMatcher(spec string) *AttributeMatcher {
	m := &AttributeMatcher{
		namespaces: make(map[string]struct{}),
		exact:      make(map[string]struct{}),
	}
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "*" {
		m.all = true
		return m
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "*" {
			m.all = true
			continue
		}
		if ns, ok := strings.CutSuffix(part, "::*"); ok {
			m.namespaces[ns] = struct{}{}
			continue
		}
		m.exact[part] = struct{}{}
	}
	return m
}

// Matches reports whether attr (e.g. "standard::size") is covered.
func (m *AttributeMatcher) Matches(attr string) bool {
	if m == nil {
		return false
	}
	if m.all {
		return true
	}
	if _, ok := m.exact[attr]; ok {
		return true
	}
	ns, _, ok := strings.Cut(attr, "::")
	if !ok {
		return false
	}
	_, ok = m.namespaces[ns]
	return ok
}

// IsEmpty reports whether the matcher covers nothing at all.
func (m *AttributeMatcher) IsEmpty() bool {
	return m == nil || (!m.all && len(m.namespaces) == 0 && len(m.exact) == 0)
}

// Subtract returns a matcher for the attributes this matcher requires
// that other does not already cover. A nil or empty result means other
// fully covers this matcher — the condition the caches treat as a hit.
func (m *AttributeMatcher) Subtract(other *AttributeMatcher) *AttributeMatcher {
	if m == nil || m.IsEmpty() {
		return nil
	}
	if other != nil && other.all {
		return nil
	}
	rest := &AttributeMatcher{
		namespaces: make(map[string]struct{}),
		exact:      make(map[string]struct{}),
	}
	if m.all {
		// Can't enumerate "everything minus other" without a concrete
		// universe of attribute names; treat it as covered only when
		// other is also unrestricted (handled above), otherwise the
		// wildcard itself is the uncovered remainder.
		rest.all = true
		return rest
	}
	for ns := range m.namespaces {
		if other == nil {
			rest.namespaces[ns] = struct{}{}
			continue
		}
		if _, ok := other.namespaces[ns]; !ok {
			rest.namespaces[ns] = struct{}{}
		}
	}
	for attr := range m.exact {
		if other != nil && other.Matches(attr) {
			continue
		}
		rest.exact[attr] = struct{}{}
	}
	if rest.IsEmpty() {
		return nil
	}
	return rest
}
