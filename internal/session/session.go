// Package session tracks two-party pairings and the single open-floor room.
package session

import "fmt"

type Kind string

const (
	KindPair      Kind = "pair"
	KindOpenFloor Kind = "open_floor"
)

// OpenFloorID is the fixed well-known id of the open-floor room.
const OpenFloorID = "open-floor"

// Session is either a two-party pairing or the open-floor room. Mutation goes
// through the Store; like the registry, neither is locked internally because
// the engine serializes all access.
type Session struct {
	ID      string
	Kind    Kind
	members map[string]struct{}
}

func (s *Session) Has(id string) bool {
	_, ok := s.members[id]
	return ok
}

func (s *Session) Len() int {
	return len(s.members)
}

// Members returns the member ids in unspecified order.
func (s *Session) Members() []string {
	out := make([]string, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	return out
}

// Others returns every member except the given one. For a PAIR this is the
// peer (or nobody, mid-teardown); for the open floor it is the broadcast set.
func (s *Session) Others(id string) []string {
	out := make([]string, 0, len(s.members))
	for member := range s.members {
		if member != id {
			out = append(out, member)
		}
	}
	return out
}

// Store holds all live sessions.
type Store struct {
	sessions map[string]*Session
	// pairSeq disambiguates pair ids when the same two participants re-match;
	// deriving the id from the participant ids alone could collide with a
	// stale session.
	pairSeq uint64
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// CreatePair creates a session containing exactly the two given participants.
// The id embeds both participant ids plus a process-monotonic sequence number
// so concurrent and repeated pairings never collide.
func (st *Store) CreatePair(a, b string) *Session {
	st.pairSeq++
	s := &Session{
		ID:   fmt.Sprintf("%s--%s--%d", a, b, st.pairSeq),
		Kind: KindPair,
		members: map[string]struct{}{
			a: {},
			b: {},
		},
	}
	st.sessions[s.ID] = s
	return s
}

// OpenFloor returns the open-floor room, creating it on first reference. It
// exists for the rest of the process lifetime.
func (st *Store) OpenFloor() *Session {
	if s, ok := st.sessions[OpenFloorID]; ok {
		return s
	}
	s := &Session{
		ID:      OpenFloorID,
		Kind:    KindOpenFloor,
		members: make(map[string]struct{}),
	}
	st.sessions[OpenFloorID] = s
	return s
}

func (st *Store) Get(id string) (*Session, bool) {
	s, ok := st.sessions[id]
	return s, ok
}

// Join adds a participant to an existing session.
func (st *Store) Join(sessionID, participantID string) bool {
	s, ok := st.sessions[sessionID]
	if !ok {
		return false
	}
	s.members[participantID] = struct{}{}
	return true
}

// Leave removes a participant from a session's member set.
func (st *Store) Leave(sessionID, participantID string) bool {
	s, ok := st.sessions[sessionID]
	if !ok {
		return false
	}
	delete(s.members, participantID)
	return true
}

// Remove deletes a session. The open floor is never removed.
func (st *Store) Remove(id string) {
	if id == OpenFloorID {
		return
	}
	delete(st.sessions, id)
}

// Len reports the number of live sessions, the open floor included once
// referenced.
func (st *Store) Len() int {
	return len(st.sessions)
}
