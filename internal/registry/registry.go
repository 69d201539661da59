package registry

import (
	"sort"
	"time"
)

// Participant is one peer's last-known standing for the current encounter.
type Participant struct {
	Identity  string    `json:"identity"`
	Count     int       `json:"count"`
	ClassTag  string    `json:"class_tag,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
	HasJumped bool      `json:"has_jumped"`
}

// Registry maps peer identity to its last-known jump count and display
// metadata. It holds state for exactly one encounter and is wiped at every
// encounter start. The registry is not internally synchronized; the owning
// session serializes all access.
type Registry struct {
	participants map[string]*Participant
}

func New() *Registry {
	return &Registry{participants: make(map[string]*Participant)}
}

// Reset wipes every entry. Called at encounter start.
func (r *Registry) Reset() {
	r.participants = make(map[string]*Participant)
}

// Seed creates an entry at count zero, used to register the local player at
// encounter start. Cosmetic fields only; has-jumped stays false.
func (r *Registry) Seed(identity, classTag string, now time.Time) {
	r.participants[identity] = &Participant{
		Identity: identity,
		ClassTag: classTag,
		LastSeen: now,
	}
}

// SetLocalCount records the locally authoritative count. Local counts are
// enforced non-decreasing; a lower value is ignored.
func (r *Registry) SetLocalCount(identity string, count int, classTag string, now time.Time) {
	p := r.ensure(identity, now)
	if count < p.Count {
		return
	}
	p.Count = count
	p.ClassTag = classTag
	p.LastSeen = now
	if count > 0 {
		p.HasJumped = true
	}
}

// ApplyState applies a remote state report. A positive count is taken as
// given, including one lower than previously seen: remote reports carry no
// monotonicity guarantee, and rejecting a regression would strand a peer
// that reloaded mid-encounter and legitimately restarted from a lower
// count. A zero count from a sender who has never jumped updates cosmetic
// metadata only, so idle peers never pollute the ranking.
func (r *Registry) ApplyState(identity string, count int, classTag string, now time.Time) {
	p := r.ensure(identity, now)
	p.LastSeen = now
	if classTag != "" {
		p.ClassTag = classTag
	}
	if count <= 0 {
		return
	}
	p.Count = count
	p.HasJumped = true
}

// Touch refreshes last-seen and cosmetic metadata without touching counts.
// Used for Hello messages.
func (r *Registry) Touch(identity, classTag string, now time.Time) {
	p := r.ensure(identity, now)
	p.LastSeen = now
	if classTag != "" {
		p.ClassTag = classTag
	}
}

func (r *Registry) ensure(identity string, now time.Time) *Participant {
	p, ok := r.participants[identity]
	if !ok {
		p = &Participant{Identity: identity, LastSeen: now}
		r.participants[identity] = p
	}
	return p
}

// Get returns a copy of the entry for identity.
func (r *Registry) Get(identity string) (Participant, bool) {
	p, ok := r.participants[identity]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

func (r *Registry) Len() int {
	return len(r.participants)
}

// Better reports whether standing (aID, aCount) ranks ahead of
// (bID, bCount): higher count first, lexicographically smaller identity on
// ties. Every winner decision in the protocol, registry-derived or
// claim-derived, goes through this one function.
func Better(aID string, aCount int, bID string, bCount int) bool {
	if aCount != bCount {
		return aCount > bCount
	}
	return aID < bID
}

// Standings returns all participants who have jumped, ranked by Better.
func (r *Registry) Standings() []Participant {
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		if !p.HasJumped || p.Count <= 0 {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return Better(out[i].Identity, out[i].Count, out[j].Identity, out[j].Count)
	})
	return out
}

// Winner returns the top standing, or ok=false if nobody has jumped.
func (r *Registry) Winner() (Participant, bool) {
	var best *Participant
	for _, p := range r.participants {
		if !p.HasJumped || p.Count <= 0 {
			continue
		}
		if best == nil || Better(p.Identity, p.Count, best.Identity, best.Count) {
			best = p
		}
	}
	if best == nil {
		return Participant{}, false
	}
	return *best, true
}
