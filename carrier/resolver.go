package carrier

import "fmt"

// Resolver looks up operator profiles. The table is copied and validated on
// construction and never changes afterwards, so a Resolver is safe for
// concurrent use.
type Resolver struct {
	profiles []Profile
	def      *Profile
}

// NewResolver builds a resolver over the given profiles. def is returned for
// identities that match no entry and may be nil, meaning generic settings.
// When two profiles share an ID the first one wins lookups, so callers can
// prepend overrides to Builtin().
func NewResolver(profiles []Profile, def *Profile) (*Resolver, error) {
	r := &Resolver{profiles: make([]Profile, 0, len(profiles))}
	seen := make(map[string]bool, len(profiles))
	for i := range profiles {
		p := profiles[i]
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("carrier table entry %d: %w", i, err)
		}
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		p.Modes = append([]Mode(nil), p.Modes...)
		r.profiles = append(r.profiles, p)
	}
	if def != nil {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("default carrier profile: %w", err)
		}
		d := *def
		r.def = &d
	}
	return r, nil
}

// Resolve returns the profile whose ID equals the identity's network prefix.
// The returned profile is shared and must not be modified.
func (r *Resolver) Resolve(identity IMSI) *Profile {
	id := identity.NetworkID()
	if id == "" {
		return r.def
	}
	for i := range r.profiles {
		if r.profiles[i].ID == id {
			return &r.profiles[i]
		}
	}
	return r.def
}

// Default returns the profile used when nothing matches.
func (r *Resolver) Default() *Profile {
	return r.def
}

// Len is the number of distinct operators in the table.
func (r *Resolver) Len() int {
	return len(r.profiles)
}
