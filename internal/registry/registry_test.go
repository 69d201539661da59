package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)

func TestApplyStateIdempotent(t *testing.T) {
	r := New()
	r.ApplyState("Ann-Realm", 5, "MAGE", t0)
	first, _ := r.Get("Ann-Realm")

	// Replaying the same report only refreshes the timestamp.
	r.ApplyState("Ann-Realm", 5, "MAGE", t0.Add(time.Second))
	second, ok := r.Get("Ann-Realm")
	require.True(t, ok)
	require.Equal(t, first.Count, second.Count)
	require.Equal(t, first.ClassTag, second.ClassTag)
	require.Equal(t, first.HasJumped, second.HasJumped)
	require.Equal(t, t0.Add(time.Second), second.LastSeen)
}

func TestApplyStateZeroCountIsCosmeticOnly(t *testing.T) {
	r := New()
	r.ApplyState("Ann-Realm", 0, "MAGE", t0)
	p, ok := r.Get("Ann-Realm")
	require.True(t, ok)
	require.Equal(t, 0, p.Count)
	require.False(t, p.HasJumped)
	require.Equal(t, "MAGE", p.ClassTag)
	require.Empty(t, r.Standings())
}

func TestApplyStateAcceptsRemoteRegression(t *testing.T) {
	// Remote reports are applied as given; see the doc comment on
	// ApplyState for why regressions are accepted.
	r := New()
	r.ApplyState("Ann-Realm", 5, "", t0)
	r.ApplyState("Ann-Realm", 3, "", t0.Add(time.Second))
	p, _ := r.Get("Ann-Realm")
	require.Equal(t, 3, p.Count)
	require.True(t, p.HasJumped)
}

func TestSetLocalCountMonotonic(t *testing.T) {
	r := New()
	r.SetLocalCount("Me-Realm", 2, "DRUID", t0)
	r.SetLocalCount("Me-Realm", 1, "DRUID", t0.Add(time.Second))
	p, _ := r.Get("Me-Realm")
	require.Equal(t, 2, p.Count)
}

func TestSeedDoesNotRank(t *testing.T) {
	r := New()
	r.Seed("Me-Realm", "DRUID", t0)
	p, ok := r.Get("Me-Realm")
	require.True(t, ok)
	require.False(t, p.HasJumped)
	_, ok = r.Winner()
	require.False(t, ok)
}

func TestWinnerTieBreak(t *testing.T) {
	r := New()
	r.ApplyState("B-Realm", 5, "", t0)
	r.ApplyState("A-Realm", 5, "", t0)
	r.ApplyState("C-Realm", 3, "", t0)

	w, ok := r.Winner()
	require.True(t, ok)
	require.Equal(t, "A-Realm", w.Identity)
}

func TestWinnerNoParticipants(t *testing.T) {
	r := New()
	r.Touch("Ann-Realm", "MAGE", t0)
	_, ok := r.Winner()
	require.False(t, ok)
}

func TestStandingsOrder(t *testing.T) {
	r := New()
	r.ApplyState("Zed-Realm", 7, "", t0)
	r.ApplyState("Ann-Realm", 3, "", t0)
	r.ApplyState("Bob-Realm", 7, "", t0)
	r.ApplyState("Idle-Realm", 0, "MAGE", t0)

	s := r.Standings()
	require.Len(t, s, 3)
	require.Equal(t, "Bob-Realm", s[0].Identity)
	require.Equal(t, "Zed-Realm", s[1].Identity)
	require.Equal(t, "Ann-Realm", s[2].Identity)
}

func TestBetter(t *testing.T) {
	require.True(t, Better("B", 5, "A", 4))
	require.False(t, Better("A", 4, "B", 5))
	require.True(t, Better("A", 5, "B", 5))
	require.False(t, Better("B", 5, "A", 5))
}

func TestReset(t *testing.T) {
	r := New()
	r.ApplyState("Ann-Realm", 5, "", t0)
	r.Reset()
	require.Zero(t, r.Len())
}
