// Package match selects a waiting partner for a participant requesting a
// pairing.
//
// The policy is two-pass first-fit over the registry's insertion order: first
// any waiting candidate sharing an interest, then any waiting candidate at
// all. No
// ranking happens beyond pass order, so with a fixed registry state the result
// is deterministic. O(n) per request is fine at the population this server
// targets; an interest-bucketed index would be the upgrade path if that ever
// changes.
package match

import (
	"github.com/samber/lo"

	"github.com/Muhammd-hafeef-th/Us/internal/registry"
)

// Candidate is a selected match target. Shared carries the interest
// intersection that produced an interest-pass hit; it is nil for a
// fallback-pass hit.
type Candidate struct {
	ID     string
	Shared []string
}

// Find scans the registry for a partner for requesterID. Both passes admit
// only waiting participants: someone who merely connected, or who is attached
// to a session, is never pulled into a pairing they did not ask for. The
// boolean is false when nobody is waiting.
func Find(reg *registry.Registry, requesterID string, requesterInterests []string) (Candidate, bool) {
	var found Candidate
	ok := false

	if len(requesterInterests) > 0 {
		reg.Each(func(p *registry.Participant) bool {
			if p.ID == requesterID || !p.Matchable() {
				return true
			}
			shared := lo.Intersect(p.Interests, requesterInterests)
			if len(shared) == 0 {
				return true
			}
			found = Candidate{ID: p.ID, Shared: shared}
			ok = true
			return false
		})
		if ok {
			return found, true
		}
	}

	reg.Each(func(p *registry.Participant) bool {
		if p.ID == requesterID || !p.Matchable() {
			return true
		}
		found = Candidate{ID: p.ID}
		ok = true
		return false
	})
	return found, ok
}
