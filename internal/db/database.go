package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calvinwijaya/blackjack-engine/internal/game"
	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db *sql.DB
}

// SessionStats aggregates the recorded rounds of one session
type SessionStats struct {
	SessionID    string     `json:"sessionId"`
	PlayerName   string     `json:"playerName"`
	RoundsPlayed int        `json:"roundsPlayed"`
	RoundsWon    int        `json:"roundsWon"`
	RoundsPushed int        `json:"roundsPushed"`
	RoundsLost   int        `json:"roundsLost"`
	TotalWagered game.Money `json:"totalWagered"`
	Net          game.Money `json:"net"`
	LastPlayed   *time.Time `json:"lastPlayed,omitempty"`
}

// NewDatabase opens (or creates) the sqlite database at path
func NewDatabase(path string) (*Database, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := initTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

// initTables creates the necessary tables if they don't exist
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			player_name TEXT NOT NULL,
			decks INTEGER NOT NULL,
			starting_balance_cents INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("error creating sessions table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS round_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			round_id TEXT NOT NULL UNIQUE,
			round_number INTEGER NOT NULL,
			bet_cents INTEGER NOT NULL,
			doubled BOOLEAN NOT NULL,
			surrendered BOOLEAN NOT NULL,
			player_cards TEXT NOT NULL,
			dealer_cards TEXT NOT NULL,
			player_total INTEGER NOT NULL,
			dealer_total INTEGER NOT NULL,
			result TEXT NOT NULL,
			delta_cents INTEGER NOT NULL,
			balance_after_cents INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			settled_at TIMESTAMP NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions (id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("error creating round_results table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// CreateSession records a new session
func (d *Database) CreateSession(sessionID, playerName string, decks int, startingBalance game.Money, createdAt time.Time) error {
	_, err := d.db.Exec(
		"INSERT INTO sessions (id, player_name, decks, starting_balance_cents, created_at) VALUES (?, ?, ?, ?, ?)",
		sessionID, playerName, decks, int64(startingBalance), createdAt.UTC(),
	)
	return err
}

// SaveRoundResult appends a settled round to the ledger
func (d *Database) SaveRoundResult(sessionID string, rec game.RoundRecord) error {
	playerCards, err := json.Marshal(rec.PlayerCards)
	if err != nil {
		return err
	}
	dealerCards, err := json.Marshal(rec.DealerCards)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(`
		INSERT INTO round_results (
			session_id, round_id, round_number, bet_cents, doubled, surrendered,
			player_cards, dealer_cards, player_total, dealer_total,
			result, delta_cents, balance_after_cents, started_at, settled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sessionID, rec.RoundID, rec.Number, int64(rec.Bet), rec.Doubled, rec.Surrendered,
		string(playerCards), string(dealerCards), rec.PlayerTotal, rec.DealerTotal,
		string(rec.Result), int64(rec.Delta), int64(rec.BalanceAfter), rec.StartedAt.UTC(), rec.SettledAt.UTC())
	return err
}

// GetSessionRounds returns the recorded rounds of a session in play order
func (d *Database) GetSessionRounds(sessionID string) ([]game.RoundRecord, error) {
	rows, err := d.db.Query(`
		SELECT round_id, round_number, bet_cents, doubled, surrendered,
			player_cards, dealer_cards, player_total, dealer_total,
			result, delta_cents, balance_after_cents, started_at, settled_at
		FROM round_results WHERE session_id = ? ORDER BY round_number
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []game.RoundRecord{}
	for rows.Next() {
		var rec game.RoundRecord
		var bet, delta, balance int64
		var result, playerCards, dealerCards string

		if err := rows.Scan(
			&rec.RoundID, &rec.Number, &bet, &rec.Doubled, &rec.Surrendered,
			&playerCards, &dealerCards, &rec.PlayerTotal, &rec.DealerTotal,
			&result, &delta, &balance, &rec.StartedAt, &rec.SettledAt,
		); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(playerCards), &rec.PlayerCards); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(dealerCards), &rec.DealerCards); err != nil {
			return nil, err
		}
		rec.Bet = game.Money(bet)
		rec.Delta = game.Money(delta)
		rec.BalanceAfter = game.Money(balance)
		rec.Result = game.Result(result)

		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetSessionStats retrieves a session's aggregate results
func (d *Database) GetSessionStats(sessionID string) (*SessionStats, error) {
	stats := SessionStats{SessionID: sessionID}

	err := d.db.QueryRow("SELECT player_name FROM sessions WHERE id = ?", sessionID).Scan(&stats.PlayerName)
	if err != nil {
		return nil, err
	}

	var wagered, net int64
	var lastPlayed sql.NullString
	err = d.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN delta_cents > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN delta_cents = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN delta_cents < 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(bet_cents), 0),
			COALESCE(SUM(delta_cents), 0),
			MAX(settled_at)
		FROM round_results WHERE session_id = ?
	`, sessionID).Scan(
		&stats.RoundsPlayed, &stats.RoundsWon, &stats.RoundsPushed, &stats.RoundsLost,
		&wagered, &net, &lastPlayed,
	)
	if err != nil {
		return nil, err
	}

	stats.TotalWagered = game.Money(wagered)
	stats.Net = game.Money(net)
	if lastPlayed.Valid {
		if t, err := parseTimestamp(lastPlayed.String); err == nil {
			stats.LastPlayed = &t
		}
	}

	return &stats, nil
}

// parseTimestamp reads the formats go-sqlite3 writes for time.Time values
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// DeleteSession removes a session and its rounds
func (d *Database) DeleteSession(sessionID string) error {
	_, err := d.db.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}
