package experiment

import (
	"sort"
	"strings"
)

// GroupResolver maps the opaque code embedded in a link to an experimental group
type GroupResolver struct {
	groups map[string]string
}

// NewGroupResolver creates a resolver over a code -> group table
func NewGroupResolver(codes map[string]string) *GroupResolver {
	groups := make(map[string]string, len(codes))
	for code, group := range codes {
		code = strings.TrimSpace(code)
		group = strings.TrimSpace(group)
		if code == "" || group == "" {
			continue
		}
		groups[code] = group
	}
	return &GroupResolver{groups: groups}
}

// Resolve returns the group for code, or ErrUnknownGroup
func (r *GroupResolver) Resolve(code string) (string, error) {
	group, ok := r.groups[strings.TrimSpace(code)]
	if !ok {
		return "", Wrap(ErrUnknownGroup, "resolve "+code, nil)
	}
	return group, nil
}

// Groups returns the distinct group names in sorted order
func (r *GroupResolver) Groups() []string {
	seen := make(map[string]struct{}, len(r.groups))
	var names []string
	for _, group := range r.groups {
		if _, ok := seen[group]; ok {
			continue
		}
		seen[group] = struct{}{}
		names = append(names, group)
	}
	sort.Strings(names)
	return names
}

// CodeFor returns a link code for group, used when printing links
func (r *GroupResolver) CodeFor(group string) (string, bool) {
	var codes []string
	for code, g := range r.groups {
		if g == group {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return "", false
	}
	sort.Strings(codes)
	return codes[0], true
}
