// Package gateway is the local I/O surface around the protocol core: an
// HTTP ingest for the host game hook's encounter/jump events and a
// websocket feed of display snapshots. It contains no coordination logic.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jumpboard/internal/session"
)

// Core defines what the gateway needs from the protocol session.
type Core interface {
	EncounterStarted(id uint64, name string)
	EncounterEnded(id uint64)
	JumpDetected()
	Snapshot() session.DisplayUpdate
}

// Service wires the ingest endpoints and the display feed to the core.
type Service struct {
	core             Core
	manager          *Manager
	clock            clockwork.Clock
	snapshotInterval time.Duration
}

func NewService(core Core, manager *Manager, clock clockwork.Clock, snapshotInterval time.Duration) *Service {
	if snapshotInterval <= 0 {
		snapshotInterval = time.Second
	}
	return &Service{
		core:             core,
		manager:          manager,
		clock:            clock,
		snapshotInterval: snapshotInterval,
	}
}

// Run pushes display snapshots to connected clients until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if s.manager.Count() > 0 {
				s.manager.Push(s.core.Snapshot())
			}
		}
	}
}

// Handler returns the CORS-wrapped HTTP handler for the gateway.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.manager.Handle)
	mux.HandleFunc("/events/start", s.handleStart)
	mux.HandleFunc("/events/end", s.handleEnd)
	mux.HandleFunc("/events/jump", s.handleJump)
	mux.HandleFunc("/healthz", s.handleHealth)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

type startEvent struct {
	EncounterID uint64 `json:"encounter_id"`
	Name        string `json:"name"`
}

type endEvent struct {
	EncounterID uint64 `json:"encounter_id"`
}

// jumpEvent carries the movement flags the host hook reports; a jump in a
// vehicle or during mounted flight does not count.
type jumpEvent struct {
	Vehicle bool `json:"vehicle"`
	Flying  bool `json:"flying"`
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var ev startEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.core.EncounterStarted(ev.EncounterID, ev.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var ev endEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.core.EncounterEnded(ev.EncounterID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleJump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var ev jumpEvent
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
	}
	if ev.Vehicle || ev.Flying {
		log.Debug().Msg("ignoring jump in disqualifying movement mode")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.core.JumpDetected()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
