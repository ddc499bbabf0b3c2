package store

import (
	"errors"

	"github.com/calvinwijaya/blackjack-engine/internal/db"
	"github.com/calvinwijaya/blackjack-engine/internal/game"
)

// ErrNotFound is returned when a session does not exist
var ErrNotFound = errors.New("session not found")

// Store defines the interface for live session storage
type Store interface {
	// SaveSession saves a session to the store
	SaveSession(s *game.Session) error

	// GetSession retrieves a session by ID
	GetSession(id string) (*game.Session, error)

	// DeleteSession removes a session from the store
	DeleteSession(id string) error

	// GetAllSessions returns all sessions in the store
	GetAllSessions() ([]*game.Session, error)
}

// Ledger records settled rounds for later inspection
type Ledger interface {
	// CreateSession registers a new session
	CreateSession(s *game.Session) error

	// RecordRound appends a settled round to a session's ledger
	RecordRound(sessionID string, rec game.RoundRecord) error

	// Rounds returns the recorded rounds of a session
	Rounds(sessionID string) ([]game.RoundRecord, error)

	// Stats aggregates the recorded rounds of a session
	Stats(sessionID string) (*db.SessionStats, error)
}
