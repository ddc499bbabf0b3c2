package store

import (
	"github.com/calvinwijaya/blackjack-engine/internal/db"
	"github.com/calvinwijaya/blackjack-engine/internal/game"
)

// DatabaseStore is a database implementation of the round ledger
type DatabaseStore struct {
	db *db.Database
}

// NewDatabaseStore creates a new database store
func NewDatabaseStore(database *db.Database) *DatabaseStore {
	return &DatabaseStore{
		db: database,
	}
}

// CreateSession registers a new session in the database
func (s *DatabaseStore) CreateSession(sess *game.Session) error {
	snap := sess.Snapshot()
	return s.db.CreateSession(sess.ID, snap.Player.Name, snap.Decks, snap.Player.Balance, sess.CreatedAt)
}

// RecordRound saves a settled round
func (s *DatabaseStore) RecordRound(sessionID string, rec game.RoundRecord) error {
	return s.db.SaveRoundResult(sessionID, rec)
}

// Rounds retrieves the recorded rounds of a session
func (s *DatabaseStore) Rounds(sessionID string) ([]game.RoundRecord, error) {
	return s.db.GetSessionRounds(sessionID)
}

// Stats retrieves a session's aggregate results
func (s *DatabaseStore) Stats(sessionID string) (*db.SessionStats, error) {
	return s.db.GetSessionStats(sessionID)
}
