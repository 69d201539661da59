// Package session implements the protocol core: the phase state machine,
// the gossip synchronization protocol, and the winner arbitration with its
// write-once posting lock. One Session represents the local peer; all state
// is scoped to a single encounter and wiped at the next encounter start.
package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jumpboard/internal/announce"
	"github.com/mcdev12/jumpboard/internal/broadcast"
	"github.com/mcdev12/jumpboard/internal/registry"
	"github.com/mcdev12/jumpboard/internal/wire"
)

// Phase governs which operations are legal.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Config carries the local identity and every protocol interval.
type Config struct {
	Identity string // canonical "Name-Realm"
	Realm    string // default realm for normalizing bare sender names
	ClassTag string

	Tick              time.Duration
	StateThrottle     time.Duration
	HelloRateLimit    time.Duration
	Heartbeat         time.Duration
	ConvergenceWindow time.Duration
	PostBaseDelay     time.Duration
	StaggerRange      time.Duration
	DisplayGrace      time.Duration
	JumpDebounce      time.Duration

	TopK       int
	MaxLineLen int
}

func (c Config) withDefaults() Config {
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	def(&c.Tick, time.Second)
	def(&c.StateThrottle, 2*time.Second)
	def(&c.HelloRateLimit, 5*time.Second)
	def(&c.Heartbeat, 15*time.Second)
	def(&c.ConvergenceWindow, 3*time.Second)
	def(&c.PostBaseDelay, 2*time.Second)
	def(&c.StaggerRange, 750*time.Millisecond)
	def(&c.DisplayGrace, 30*time.Second)
	def(&c.JumpDebounce, 80*time.Millisecond)
	if c.TopK <= 0 {
		c.TopK = announce.DefaultTopK
	}
	if c.MaxLineLen <= 0 {
		c.MaxLineLen = announce.DefaultMaxLineLen
	}
	return c
}

// DisplayUpdate is the read-only snapshot handed to the display layer.
type DisplayUpdate struct {
	Phase         string                 `json:"phase"`
	EncounterID   uint64                 `json:"encounter_id"`
	EncounterName string                 `json:"encounter_name"`
	LocalCount    int                    `json:"local_count"`
	Participants  []registry.Participant `json:"participants"`
}

// Session owns the registry, the encounter context, and the arbitration
// state for the local peer. All mutation happens under one mutex, taken by
// message handlers, local events, and timer callbacks alike, so the session
// behaves as a single logical thread of control. The protocol itself is
// designed for peers running fully in parallel with lossy, unordered
// messaging between them.
type Session struct {
	cfg        Config
	clock      clockwork.Clock
	sched      *Scheduler
	channel    broadcast.Channel
	instanceID string

	mu  sync.Mutex
	reg *registry.Registry

	phase         Phase
	encounterID   uint64
	encounterName string

	localCount    int
	lastJumpAt    time.Time
	lastStateSent time.Time
	statePending  bool
	lastHelloSent time.Time
	lastHeartbeat time.Time

	// Arbitration state, reset at every encounter start and every freeze.
	claimedWinner      string
	claimedWinnerCount int
	postedBy           string // write-once

	convergeTask *Task
	postTask     *Task
	graceTask    *Task
}

// New creates an idle session. Call Run to drive the periodic tick and wire
// the channel's Subscribe to HandleMessage.
func New(cfg Config, clock clockwork.Clock, channel broadcast.Channel) *Session {
	return &Session{
		cfg:        cfg.withDefaults(),
		clock:      clock,
		sched:      NewScheduler(clock),
		channel:    channel,
		instanceID: uuid.New().String()[:8],
		reg:        registry.New(),
	}
}

// Run drives the periodic tick until ctx is done. The tick flushes
// throttled state broadcasts and sends heartbeats.
func (s *Session) Run(ctx context.Context) error {
	log.Info().
		Str("instance", s.instanceID).
		Str("identity", s.cfg.Identity).
		Msg("session started")

	ticker := s.clock.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", s.instanceID).Msg("session shutting down")
			return nil
		case <-ticker.Chan():
			s.tick()
		}
	}
}

// EncounterStarted transitions Idle (or any stale phase) to Active: full
// wipe, seed self at zero, forced presence broadcast.
func (s *Session) EncounterStarted(id uint64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	log.Info().
		Str("instance", s.instanceID).
		Uint64("encounter_id", id).
		Str("encounter", name).
		Msg("encounter started")

	s.cancelTasksLocked()
	s.phase = PhaseActive
	s.encounterID = id
	s.encounterName = name
	s.localCount = 0
	s.lastJumpAt = time.Time{}
	s.statePending = false
	s.resetArbitrationLocked()

	s.reg.Reset()
	s.reg.Seed(s.cfg.Identity, s.cfg.ClassTag, now)

	s.sendHelloLocked(now, true)
	s.sendRequestLocked(now)
	s.sendStateLocked(now)
	s.lastHeartbeat = now
}

// EncounterEnded freezes the count and starts convergence and arbitration.
// If the carried id differs from the stored one (or the stored one is
// unset, after a missed start signal), the context heals to the carried id.
func (s *Session) EncounterEnded(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseActive {
		return
	}
	now := s.clock.Now()

	if s.encounterID == 0 || s.encounterID != id {
		log.Debug().
			Str("instance", s.instanceID).
			Uint64("stored", s.encounterID).
			Uint64("carried", id).
			Msg("healing encounter id at freeze")
		s.encounterID = id
	}

	s.phase = PhaseEnded
	s.statePending = false
	s.resetArbitrationLocked()
	s.sendStateLocked(now)

	log.Info().
		Str("instance", s.instanceID).
		Uint64("encounter_id", s.encounterID).
		Int("local_count", s.localCount).
		Msg("encounter ended, starting convergence window")

	s.convergeTask = s.sched.After(s.cfg.ConvergenceWindow, s.onConvergence)
	s.graceTask = s.sched.After(s.cfg.DisplayGrace, s.onDisplayGrace)
}

// JumpDetected increments the local count by one while Active, coalescing
// events closer together than the debounce interval.
func (s *Session) JumpDetected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseActive {
		return
	}
	now := s.clock.Now()
	if !s.lastJumpAt.IsZero() && now.Sub(s.lastJumpAt) < s.cfg.JumpDebounce {
		return
	}
	s.lastJumpAt = now
	s.localCount++
	s.reg.SetLocalCount(s.cfg.Identity, s.localCount, s.cfg.ClassTag, now)

	if now.Sub(s.lastStateSent) >= s.cfg.StateThrottle {
		s.sendStateLocked(now)
	} else {
		s.statePending = true
	}
}

// HandleMessage processes one inbound broadcast line. It is the
// broadcast.Handler for this session.
func (s *Session) HandleMessage(senderID, rawText string) {
	sender := wire.NormalizeIdentity(senderID, s.cfg.Realm)
	if sender == "" || sender == s.cfg.Identity {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseIdle {
		return
	}

	msg, err := wire.Parse(rawText)
	if err != nil {
		log.Debug().
			Str("instance", s.instanceID).
			Str("sender", sender).
			Msg("dropping malformed message")
		return
	}
	now := s.clock.Now()

	// Hello/Request/State are matched leniently: any encounter id is
	// accepted while not idle, tolerating peers that missed the start
	// signal. Claim/Posted are strict, arbitration reasons about one
	// election round.
	switch m := msg.(type) {
	case wire.Hello:
		s.reg.Touch(sender, m.ClassTag, now)
		s.replyStateLocked(now)

	case wire.Request:
		s.reg.Touch(sender, "", now)
		s.replyStateLocked(now)

	case wire.State:
		s.reg.ApplyState(sender, m.Count, m.ClassTag, now)

	case wire.Claim:
		if m.EncounterID != s.encounterID {
			return
		}
		s.observeClaimLocked(m.WinnerID, m.WinnerCount)

	case wire.Posted:
		if m.EncounterID != s.encounterID {
			return
		}
		s.observePostedLocked(m.PosterID)
	}
}

// Snapshot returns the current display view. Idle sessions report an empty
// board.
func (s *Session) Snapshot() DisplayUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	du := DisplayUpdate{
		Phase:      s.phase.String(),
		LocalCount: s.localCount,
	}
	if s.phase == PhaseIdle {
		return du
	}
	du.EncounterID = s.encounterID
	du.EncounterName = s.encounterName
	du.Participants = s.reg.Standings()
	return du
}

// tick flushes a throttled state broadcast once its window has passed and
// re-sends Hello+State on the heartbeat interval to recover from lost
// messages.
func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseActive {
		return
	}
	now := s.clock.Now()

	if s.statePending && now.Sub(s.lastStateSent) >= s.cfg.StateThrottle {
		s.statePending = false
		s.sendStateLocked(now)
	}

	if now.Sub(s.lastHeartbeat) >= s.cfg.Heartbeat {
		s.lastHeartbeat = now
		s.sendHelloLocked(now, false)
		s.sendStateLocked(now)
	}
}

// onConvergence runs when the convergence window closes: broadcast the
// local opinion of the winner and, if that opinion names the local peer,
// arm the staggered posting attempt.
func (s *Session) onConvergence() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseEnded {
		return
	}
	if s.postedBy != "" {
		return // someone already won the race
	}
	winner, ok := s.reg.Winner()
	if !ok {
		return // nothing to announce
	}

	s.broadcastLocked(wire.Claim{
		EncounterID: s.encounterID,
		WinnerID:    winner.Identity,
		WinnerCount: winner.Count,
	})
	s.observeClaimLocked(winner.Identity, winner.Count)

	if winner.Identity != s.cfg.Identity {
		return // only the self-perceived winner attempts to post
	}

	delay := s.cfg.PostBaseDelay + staggerFor(s.cfg.Identity, s.cfg.StaggerRange)
	log.Debug().
		Str("instance", s.instanceID).
		Dur("delay", delay).
		Msg("local peer is computed winner, arming post timer")
	s.postTask = s.sched.After(delay, s.onPostTimer)
}

// onPostTimer is the posting attempt: recheck the lock, recompute the
// winner from the freshest registry, then claim the lock, broadcast Posted,
// and announce exactly once.
func (s *Session) onPostTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseEnded {
		return
	}
	if s.postedBy != "" {
		return
	}
	winner, ok := s.reg.Winner()
	if !ok || winner.Identity != s.cfg.Identity {
		return // a fresher report changed the outcome; abort silently
	}

	s.postedBy = s.cfg.Identity
	s.broadcastLocked(wire.Posted{EncounterID: s.encounterID, PosterID: s.cfg.Identity})

	lines := announce.Render(s.encounterName, s.reg.Standings(), announce.Options{
		TopK:       s.cfg.TopK,
		MaxLineLen: s.cfg.MaxLineLen,
	})
	if err := s.channel.Post(lines); err != nil {
		log.Debug().Err(err).Str("instance", s.instanceID).Msg("announcement post failed")
		return
	}
	log.Info().
		Str("instance", s.instanceID).
		Uint64("encounter_id", s.encounterID).
		Int("lines", len(lines)).
		Msg("posted leaderboard announcement")
}

// onDisplayGrace returns the session to Idle after the grace period,
// independent of the arbitration outcome.
func (s *Session) onDisplayGrace() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseEnded {
		return
	}
	s.postTask.Cancel()
	s.phase = PhaseIdle
	log.Debug().Str("instance", s.instanceID).Msg("display grace elapsed, back to idle")
}

func (s *Session) observeClaimLocked(winnerID string, winnerCount int) {
	if s.claimedWinner == "" ||
		registry.Better(winnerID, winnerCount, s.claimedWinner, s.claimedWinnerCount) {
		s.claimedWinner = winnerID
		s.claimedWinnerCount = winnerCount
	}
}

func (s *Session) observePostedLocked(posterID string) {
	s.postTask.Cancel()
	if s.postedBy != "" {
		return // first writer wins, never overwritten
	}
	s.postedBy = posterID
	log.Debug().
		Str("instance", s.instanceID).
		Str("poster", posterID).
		Msg("posting lock taken by peer")
}

func (s *Session) resetArbitrationLocked() {
	s.claimedWinner = ""
	s.claimedWinnerCount = 0
	s.postedBy = ""
}

func (s *Session) cancelTasksLocked() {
	s.convergeTask.Cancel()
	s.postTask.Cancel()
	s.graceTask.Cancel()
}

// replyStateLocked answers a Hello/Request with the local state. Peers that
// have never jumped stay silent so they never seed zero entries remotely.
func (s *Session) replyStateLocked(now time.Time) {
	if s.localCount == 0 {
		return
	}
	s.sendStateLocked(now)
}

func (s *Session) sendStateLocked(now time.Time) {
	s.lastStateSent = now
	s.broadcastLocked(wire.State{
		EncounterID: s.encounterID,
		Count:       s.localCount,
		ClassTag:    s.cfg.ClassTag,
	})
}

func (s *Session) sendHelloLocked(now time.Time, force bool) {
	if !force && now.Sub(s.lastHelloSent) < s.cfg.HelloRateLimit {
		return
	}
	s.lastHelloSent = now
	s.broadcastLocked(wire.Hello{EncounterID: s.encounterID, ClassTag: s.cfg.ClassTag})
}

func (s *Session) sendRequestLocked(now time.Time) {
	s.broadcastLocked(wire.Request{EncounterID: s.encounterID})
}

// broadcastLocked is best-effort: a send failure (no channel, transport
// down) is logged and forgotten, never queued or retried.
func (s *Session) broadcastLocked(m wire.Message) {
	if err := s.channel.Broadcast(m.Encode()); err != nil {
		log.Debug().Err(err).Str("instance", s.instanceID).Msg("broadcast failed")
	}
}

// staggerFor derives a stable per-identity delay inside [0, rng), spreading
// out the posting attempts of independently-converged winners.
func staggerFor(identity string, rng time.Duration) time.Duration {
	ms := rng / time.Millisecond
	if ms <= 0 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(identity))
	return time.Duration(h.Sum32()%uint32(ms)) * time.Millisecond
}
