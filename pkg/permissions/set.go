package permissions

// Set is an effective permission set. The zero value is an empty set.
type Set map[Permission]struct{}

// NewSet builds a set from raw identifiers. Identifiers outside the registry are dropped.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s.add(Permission(v))
	}
	return s
}

// Union merges any number of permission lists into one set
func Union(lists ...[]Permission) Set {
	s := make(Set)
	for _, list := range lists {
		for _, p := range list {
			s.add(p)
		}
	}
	return s
}

func (s Set) add(p Permission) {
	if p.Known() {
		s[p] = struct{}{}
	}
}

// Has reports whether p is in the set
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAny reports whether at least one of ps is in the set. HasAny() is false.
func (s Set) HasAny(ps ...Permission) bool {
	for _, p := range ps {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of ps is in the set. HasAll() is true.
func (s Set) HasAll(ps ...Permission) bool {
	for _, p := range ps {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Len returns the number of permissions in the set
func (s Set) Len() int {
	return len(s)
}

// Sorted returns the members in a stable order
func (s Set) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sortPermissions(out)
	return out
}

// Strings returns the sorted members as plain strings
func (s Set) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = string(p)
	}
	return out
}

// Equal reports whether both sets hold the same members
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for p := range s {
		if !other.Has(p) {
			return false
		}
	}
	return true
}
