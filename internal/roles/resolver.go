// Package roles decides whether a caller's role set qualifies for mapper
// enrichment.
package roles

import (
	"sort"
	"strings"
)

// LearnerRole is the role that qualifies for enrichment by default.
const LearnerRole = "Learner"

// Resolver decides, from a caller's role set, whether role-gated enrichment
// should run.
type Resolver interface {
	ShouldResolve(roles []string) bool
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(roles []string) bool

// ShouldResolve calls f.
func (f ResolverFunc) ShouldResolve(roles []string) bool {
	return f(roles)
}

// DefaultResolver qualifies a role set when it contains any of the
// configured roles. Roles are compared exactly after trimming whitespace.
type DefaultResolver struct {
	qualifying map[string]struct{}
}

// NewDefaultResolver returns a resolver for the given qualifying roles. With
// no roles it falls back to LearnerRole.
func NewDefaultResolver(qualifying ...string) *DefaultResolver {
	set := make(map[string]struct{}, len(qualifying))
	for _, role := range qualifying {
		role = strings.TrimSpace(role)
		if role != "" {
			set[role] = struct{}{}
		}
	}
	if len(set) == 0 {
		set[LearnerRole] = struct{}{}
	}
	return &DefaultResolver{qualifying: set}
}

// ShouldResolve reports whether roles contains a qualifying role.
func (r *DefaultResolver) ShouldResolve(roles []string) bool {
	if r == nil {
		return false
	}
	for _, role := range roles {
		if _, ok := r.qualifying[strings.TrimSpace(role)]; ok {
			return true
		}
	}
	return false
}

// Qualifying returns the configured qualifying roles, sorted.
func (r *DefaultResolver) Qualifying() []string {
	out := make([]string, 0, len(r.qualifying))
	for role := range r.qualifying {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// Split parses a delimited role list such as "Learner;Instructor". Both ','
// and ';' separate roles; blanks are dropped.
func Split(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
