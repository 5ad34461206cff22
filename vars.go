package factory

// Vars is the construction context handed to definition hooks. It carries
// parameters the hooks need (for example the tenant an entity must belong
// to) and is distinct from attribute overrides.
type Vars map[string]any

// Has reports whether key is present. A key mapped to nil is present.
func (v Vars) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// String returns the value of key if it is a string.
func (v Vars) String(key string) (string, bool) {
	s, ok := v[key].(string)
	return s, ok
}

// Requirement declares context keys a definition needs.
type Requirement struct {
	Keys []string
	// Any makes the requirement satisfied by any one of Keys.
	Any bool
}

// Key requires a single context key.
func Key(k string) Requirement {
	return Requirement{Keys: []string{k}}
}

// AllOf requires every key of the group.
func AllOf(keys ...string) Requirement {
	return Requirement{Keys: keys}
}

// AnyOf requires at least one key of the group.
func AnyOf(keys ...string) Requirement {
	return Requirement{Keys: keys, Any: true}
}

// missing returns the keys that make r unsatisfied by v, or nil.
func (r Requirement) missing(v Vars) []string {
	if r.Any {
		for _, k := range r.Keys {
			if v.Has(k) {
				return nil
			}
		}
		return r.Keys
	}
	var out []string
	for _, k := range r.Keys {
		if !v.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Check validates v against reqs in order and reports the first unsatisfied
// requirement as a *MissingContextError. Empty requirements always pass.
func Check(v Vars, reqs ...Requirement) error {
	for _, r := range reqs {
		if len(r.Keys) == 0 {
			continue
		}
		if keys := r.missing(v); len(keys) > 0 {
			return &MissingContextError{Keys: keys, Any: r.Any}
		}
	}
	return nil
}
