package raid

import (
	"sort"
	"strings"
)

// RoleSet is the ordered list of recognized roles. Lookups ignore case and
// surrounding space.
type RoleSet struct {
	names []string
	byKey map[string]string
}

func NewRoleSet(names []string) *RoleSet {
	rs := &RoleSet{byKey: make(map[string]string, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || rs.byKey[key] != "" {
			continue
		}
		rs.names = append(rs.names, n)
		rs.byKey[key] = n
	}
	return rs
}

// Canonical returns the configured spelling of role.
func (rs *RoleSet) Canonical(role string) (string, bool) {
	n, ok := rs.byKey[strings.ToLower(strings.TrimSpace(role))]
	return n, ok
}

func (rs *RoleSet) Names() []string {
	return append([]string(nil), rs.names...)
}

func (rs *RoleSet) String() string {
	return strings.Join(rs.names, ", ")
}

// Index returns the position of role, or -1.
func (rs *RoleSet) Index(role string) int {
	for i, n := range rs.names {
		if n == role {
			return i
		}
	}
	return -1
}

// At returns the role at position i.
func (rs *RoleSet) At(i int) (string, bool) {
	if i < 0 || i >= len(rs.names) {
		return "", false
	}
	return rs.names[i], true
}

// Ordered returns the roles of capacity in configured order, followed by
// unknown roles sorted by name.
func (rs *RoleSet) Ordered(capacity map[string]int) []string {
	out := make([]string, 0, len(capacity))
	seen := make(map[string]bool, len(capacity))
	for _, n := range rs.names {
		if _, ok := capacity[n]; ok {
			out = append(out, n)
			seen[n] = true
		}
	}
	var extra []string
	for n := range capacity {
		if !seen[n] {
			extra = append(extra, n)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
