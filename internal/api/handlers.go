package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/mux"

	"github.com/calvinwijaya/blackjack-engine/internal/game"
	"github.com/calvinwijaya/blackjack-engine/internal/store"
)

// SessionDefaults are applied when a create request leaves a field unset
type SessionDefaults struct {
	Decks           int
	StartingBalance game.Money
	Seed            int64
}

// Handlers contains all the API handlers
type Handlers struct {
	store    store.Store
	ledger   store.Ledger
	hub      *Hub
	defaults SessionDefaults
	clock    quartz.Clock
	logger   *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewHandlers creates a new instance of Handlers. ledger and hub may be nil.
func NewHandlers(st store.Store, ledger store.Ledger, hub *Hub, defaults SessionDefaults, clock quartz.Clock, logger *log.Logger) *Handlers {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handlers{
		store:    st,
		ledger:   ledger,
		hub:      hub,
		defaults: defaults,
		clock:    clock,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// RegisterRoutes registers all API routes
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	// Session endpoints
	r.HandleFunc("/api/session", h.NewSession).Methods("POST")
	r.HandleFunc("/api/session", h.ListSessions).Methods("GET")
	r.HandleFunc("/api/session/{id}", h.GetSession).Methods("GET")
	r.HandleFunc("/api/session/{id}", h.DeleteSession).Methods("DELETE")

	// Round endpoints
	r.HandleFunc("/api/session/{id}/round", h.StartRound).Methods("POST")
	r.HandleFunc("/api/session/{id}/action", h.Act).Methods("POST")

	// Results
	r.HandleFunc("/api/session/{id}/history", h.GetHistory).Methods("GET")
	r.HandleFunc("/api/session/{id}/stats", h.GetStats).Methods("GET")

	// WebSocket endpoint
	if h.hub != nil {
		r.HandleFunc("/ws", h.hub.WebSocketHandler)
	}
}

// response helper function to send JSON responses
func response(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// error response helper function
func errorResponse(w http.ResponseWriter, status int, message string) {
	response(w, status, map[string]string{"error": message})
}

// gameErrorResponse maps engine errors to HTTP status codes
func gameErrorResponse(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrValidation):
		errorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrIllegalAction):
		errorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrEmptyShoe):
		errorResponse(w, http.StatusServiceUnavailable, "shoe ran out, round discarded; start a new round")
	case errors.Is(err, store.ErrNotFound):
		errorResponse(w, http.StatusNotFound, "Session not found")
	default:
		errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

// lockSession serializes access to one session; the engine is single-threaded
func (h *Handlers) lockSession(id string) func() {
	h.mu.Lock()
	l, ok := h.locks[id]
	if !ok {
		l = &sync.Mutex{}
		h.locks[id] = l
	}
	h.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// NewSession creates a new blackjack session
func (h *Handlers) NewSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerName string     `json:"playerName"`
		Decks      int        `json:"decks"`
		Balance    game.Money `json:"balance"`
		Seed       int64      `json:"seed"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.PlayerName == "" {
		errorResponse(w, http.StatusBadRequest, "Player name is required")
		return
	}
	if req.Decks == 0 {
		req.Decks = h.defaults.Decks
	}
	if req.Balance == 0 {
		req.Balance = h.defaults.StartingBalance
	}
	if req.Seed == 0 {
		req.Seed = h.defaults.Seed
	}

	sess, err := game.NewSession(game.SessionConfig{
		PlayerName:      req.PlayerName,
		Decks:           req.Decks,
		StartingBalance: req.Balance,
		Seed:            req.Seed,
		Clock:           h.clock,
		Logger:          h.logger,
	})
	if err != nil {
		gameErrorResponse(w, err)
		return
	}

	if err := h.store.SaveSession(sess); err != nil {
		h.logger.Error("failed to save session", "err", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to save session")
		return
	}

	// The ledger is best effort; play continues without it
	if h.ledger != nil {
		if err := h.ledger.CreateSession(sess); err != nil {
			h.logger.Warn("failed to record session", "session", sess.ID, "err", err)
		}
	}

	h.logger.Info("session created", "session", sess.ID, "player", sess.Player().Name, "decks", req.Decks)
	response(w, http.StatusCreated, sess.Snapshot())
}

// ListSessions returns a summary of every live session
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.GetAllSessions()
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Error retrieving sessions")
		return
	}

	list := make([]map[string]interface{}, 0, len(sessions))
	for _, sess := range sessions {
		unlock := h.lockSession(sess.ID)
		snap := sess.Snapshot()
		unlock()

		summary := map[string]interface{}{
			"id":           snap.ID,
			"playerName":   snap.Player.Name,
			"balance":      snap.Player.Balance,
			"decks":        snap.Decks,
			"roundsPlayed": snap.RoundsPlayed,
			"lastUpdated":  snap.UpdatedAt.Format(time.RFC3339),
		}
		if snap.Round != nil {
			summary["roundState"] = snap.Round.State
		}
		list = append(list, summary)
	}

	response(w, http.StatusOK, list)
}

// GetSession returns the current state of a session
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, err := h.store.GetSession(id)
	if err != nil {
		gameErrorResponse(w, err)
		return
	}

	unlock := h.lockSession(id)
	defer unlock()
	response(w, http.StatusOK, sess.Snapshot())
}

// DeleteSession ends a session
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.store.DeleteSession(id); err != nil {
		gameErrorResponse(w, err)
		return
	}

	h.mu.Lock()
	delete(h.locks, id)
	h.mu.Unlock()

	if h.hub != nil {
		h.hub.BroadcastToSession(id, Message{Type: "sessionClosed", SessionID: id})
	}

	w.WriteHeader(http.StatusNoContent)
}

// StartRound places a bet and deals a new round
func (h *Handlers) StartRound(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Bet game.Money `json:"bet"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.play(w, id, func(sess *game.Session) (game.SessionSnapshot, error) {
		return sess.StartRound(req.Bet)
	})
}

// Act applies a player decision to the current round
func (h *Handlers) Act(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Action string `json:"action"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	action, err := game.ParseAction(req.Action)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	h.play(w, id, func(sess *game.Session) (game.SessionSnapshot, error) {
		return sess.Act(action)
	})
}

// play runs one state change on a session, then records and broadcasts it
func (h *Handlers) play(w http.ResponseWriter, id string, step func(*game.Session) (game.SessionSnapshot, error)) {
	sess, err := h.store.GetSession(id)
	if err != nil {
		gameErrorResponse(w, err)
		return
	}

	unlock := h.lockSession(id)
	defer unlock()

	before := sess.Snapshot().RoundsPlayed
	snap, err := step(sess)

	// An empty shoe still changes the session (round discarded, shoe rebuilt)
	if err != nil && !errors.Is(err, game.ErrEmptyShoe) {
		gameErrorResponse(w, err)
		return
	}

	if saveErr := h.store.SaveSession(sess); saveErr != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to update session")
		return
	}

	if snap.RoundsPlayed > before && h.ledger != nil {
		if rec, ok := sess.LastRecord(); ok {
			if err := h.ledger.RecordRound(id, rec); err != nil {
				h.logger.Warn("failed to record round", "session", id, "round", rec.RoundID, "err", err)
			}
		}
	}

	if h.hub != nil {
		h.hub.BroadcastSessionUpdate(snap)
	}

	if err != nil {
		gameErrorResponse(w, err)
		return
	}
	response(w, http.StatusOK, snap)
}

// GetHistory returns the settled rounds of a session
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, err := h.store.GetSession(id)
	if err != nil {
		gameErrorResponse(w, err)
		return
	}

	unlock := h.lockSession(id)
	defer unlock()
	response(w, http.StatusOK, sess.History())
}

// GetStats returns the ledger statistics of a session
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.store.GetSession(id); err != nil {
		gameErrorResponse(w, err)
		return
	}

	if h.ledger == nil {
		errorResponse(w, http.StatusServiceUnavailable, "Database not available")
		return
	}

	stats, err := h.ledger.Stats(id)
	if err != nil {
		h.logger.Error("failed to load stats", "session", id, "err", err)
		errorResponse(w, http.StatusInternalServerError, "Error retrieving session statistics")
		return
	}

	response(w, http.StatusOK, stats)
}
