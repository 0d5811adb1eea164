// Package registry tracks every connected participant and their pairing
// state.
//
// The registry is not safe for concurrent use on its own; the signaling
// engine serializes all access under its single mutex domain, which matching
// relies on for a consistent snapshot of who is idle.
package registry

import "errors"

var ErrAlreadyRegistered = errors.New("registry: participant already registered")

// Participant is one live connection. The ID is assigned by the transport at
// connect time and is the sole lookup key everywhere; other components hold
// only the id, never the struct.
type Participant struct {
	ID          string
	DisplayName string
	Interests   []string
	// SessionID references the session the participant currently occupies.
	// Empty means not attached to any session.
	SessionID string
	// Waiting marks an unmatched pairing request. Only waiting participants
	// are match candidates; merely being connected, or chatting on the open
	// floor, never opts anyone into matching.
	Waiting bool
}

// Idle reports whether the participant is attached to no session.
func (p *Participant) Idle() bool {
	return p.SessionID == ""
}

// Matchable reports whether the participant is an eligible match candidate:
// they asked for a pairing and have not been attached to a session since.
func (p *Participant) Matchable() bool {
	return p.Waiting && p.SessionID == ""
}

// Fields enumerates the mutable participant fields for Update. Nil pointers
// leave the field untouched. Restricting updates to these fields keeps a
// client payload from ever overwriting the id.
type Fields struct {
	DisplayName *string
	Interests   *[]string
	SessionID   *string
	Waiting     *bool
}

// Registry stores participants with stable insertion-order iteration. Go map
// iteration order is randomized, and matching must be deterministic for a
// given population, so an explicit order slice is kept alongside the map.
type Registry struct {
	byID  map[string]*Participant
	order []string
}

func New() *Registry {
	return &Registry{
		byID: make(map[string]*Participant),
	}
}

// Register inserts a new idle participant. It fails only when the id is
// already present, which indicates a transport bug rather than a user error.
func (r *Registry) Register(id, displayName string) (*Participant, error) {
	if _, ok := r.byID[id]; ok {
		return nil, ErrAlreadyRegistered
	}
	p := &Participant{
		ID:          id,
		DisplayName: displayName,
	}
	r.byID[id] = p
	r.order = append(r.order, id)
	return p, nil
}

// Unregister removes and returns the participant. Calling it twice is fine;
// the second call reports absence instead of failing, since teardown events
// can race.
func (r *Registry) Unregister(id string) (*Participant, bool) {
	p, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	for i, ordered := range r.order {
		if ordered == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p, true
}

func (r *Registry) Get(id string) (*Participant, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Update applies the non-nil fields. It reports false (and does nothing) when
// the participant is already gone, because events routinely race with a
// just-processed disconnect.
func (r *Registry) Update(id string, fields Fields) bool {
	p, ok := r.byID[id]
	if !ok {
		return false
	}
	if fields.DisplayName != nil {
		p.DisplayName = *fields.DisplayName
	}
	if fields.Interests != nil {
		p.Interests = *fields.Interests
	}
	if fields.SessionID != nil {
		p.SessionID = *fields.SessionID
	}
	if fields.Waiting != nil {
		p.Waiting = *fields.Waiting
	}
	return true
}

func (r *Registry) Count() int {
	return len(r.byID)
}

// Each visits participants in insertion order until fn returns false. fn must
// not mutate the registry.
func (r *Registry) Each(fn func(*Participant) bool) {
	for _, id := range r.order {
		if !fn(r.byID[id]) {
			return
		}
	}
}
