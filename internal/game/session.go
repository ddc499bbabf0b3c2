package game

import (
	"errors"
	"fmt"
	rand "math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
)

const DefaultDecks = 6

// SessionConfig describes a new session. Zero values fall back to defaults.
type SessionConfig struct {
	PlayerName      string
	Decks           int
	StartingBalance Money
	Seed            int64
	Clock           quartz.Clock
	Logger          *log.Logger
}

// RoundRecord is the settled result of one round.
type RoundRecord struct {
	RoundID      string    `json:"roundId"`
	Number       int       `json:"number"`
	Bet          Money     `json:"bet"`
	Doubled      bool      `json:"doubled"`
	Surrendered  bool      `json:"surrendered"`
	PlayerCards  []Card    `json:"playerCards"`
	DealerCards  []Card    `json:"dealerCards"`
	PlayerTotal  int       `json:"playerTotal"`
	DealerTotal  int       `json:"dealerTotal"`
	Result       Result    `json:"result"`
	Delta        Money     `json:"delta"`
	BalanceAfter Money     `json:"balanceAfter"`
	StartedAt    time.Time `json:"startedAt"`
	SettledAt    time.Time `json:"settledAt"`
}

// SessionSnapshot is a read-only view of a session for display.
type SessionSnapshot struct {
	ID            string         `json:"id"`
	Player        Player         `json:"player"`
	Dealer        string         `json:"dealer"`
	Decks         int            `json:"decks"`
	ShoeRemaining int            `json:"shoeRemaining"`
	ShoeFraction  float64        `json:"shoeFraction"`
	Round         *RoundSnapshot `json:"round,omitempty"`
	RoundsPlayed  int            `json:"roundsPlayed"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Session is one player's run of rounds against the dealer. It owns the shoe
// and the current round. It is not safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	player  *Player
	decks   int
	rng     *rand.Rand
	shoe    *Shoe
	round   *Round
	started time.Time
	history []RoundRecord

	clock  quartz.Clock
	logger *log.Logger
}

// NewSession validates the configuration and builds a shuffled shoe.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Decks == 0 {
		cfg.Decks = DefaultDecks
	}
	if err := ValidateDecks(cfg.Decks); err != nil {
		return nil, err
	}
	if cfg.StartingBalance == 0 {
		cfg.StartingBalance = DefaultStartingBalance
	}
	if cfg.StartingBalance < 0 {
		return nil, fmt.Errorf("%w: starting balance %s is negative", ErrValidation, cfg.StartingBalance)
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	now := cfg.Clock.Now()
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		player:    NewPlayer(cfg.PlayerName, cfg.StartingBalance),
		decks:     cfg.Decks,
		rng:       NewRand(cfg.Seed),
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if err := s.rebuildShoe(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Session) rebuildShoe() error {
	shoe, err := NewShoe(s.decks, s.rng)
	if err != nil {
		return err
	}
	shoe.Shuffle()
	s.shoe = shoe
	s.logger.Debug("shoe shuffled", "session", s.ID, "decks", s.decks, "cards", shoe.Remaining())
	return nil
}

// UseShoe replaces the session's shoe, e.g. with a stacked shoe for replays.
func (s *Session) UseShoe(shoe *Shoe) {
	s.shoe = shoe
}

func (s *Session) roundActive() bool {
	if s.round == nil {
		return false
	}
	switch s.round.State() {
	case Aborted:
		return false
	case Settled:
		_, settled := s.round.Settlement()
		return !settled
	default:
		return true
	}
}

// StartRound places a bet and deals a new round. The shoe is rebuilt first
// when less than a quarter of it remains. If the shoe runs dry while dealing
// the round is discarded, a fresh shoe is built and ErrEmptyShoe is returned.
func (s *Session) StartRound(bet Money) (SessionSnapshot, error) {
	if s.roundActive() {
		return s.Snapshot(), fmt.Errorf("%w: round %s still in progress", ErrIllegalAction, s.round.ID)
	}
	if bet <= 0 || !bet.IsWhole() || bet > s.player.Balance {
		return s.Snapshot(), fmt.Errorf("%w: bet %s must be a whole amount between 1 and %s", ErrValidation, bet, s.player.Balance)
	}

	if s.shoe.NeedsReshuffle() {
		s.logger.Info("reshuffling shoe", "session", s.ID, "remaining", s.shoe.RemainingFraction())
		if err := s.rebuildShoe(); err != nil {
			return s.Snapshot(), err
		}
	}

	r, err := StartRound(s.shoe, s.player.Balance, bet)
	if err != nil {
		if errors.Is(err, ErrEmptyShoe) {
			s.round = nil
			return s.Snapshot(), s.recoverEmptyShoe(err)
		}
		return s.Snapshot(), err
	}

	s.round = r
	s.started = s.clock.Now()
	s.touch()
	s.logger.Debug("round started", "session", s.ID, "round", r.ID, "bet", bet)

	err = s.advance()
	return s.Snapshot(), err
}

// Act applies a player action and plays the round forward as far as it can
// go without another decision: dealer turn, settlement and balance update.
func (s *Session) Act(a Action) (SessionSnapshot, error) {
	if s.round == nil || s.round.State() != PlayerTurn {
		return s.Snapshot(), fmt.Errorf("%w: no player decision pending", ErrIllegalAction)
	}

	if _, err := s.round.ApplyPlayerAction(a); err != nil {
		if errors.Is(err, ErrEmptyShoe) {
			return s.Snapshot(), s.recoverEmptyShoe(err)
		}
		return s.Snapshot(), err
	}
	s.touch()

	err := s.advance()
	return s.Snapshot(), err
}

func (s *Session) advance() error {
	if s.round.State() == DealerTurn {
		if err := s.round.RunDealerTurn(); err != nil {
			if errors.Is(err, ErrEmptyShoe) {
				return s.recoverEmptyShoe(err)
			}
			return err
		}
	}

	if s.round.State() != Settled {
		return nil
	}

	settlement, err := s.round.Settle()
	if err != nil {
		return err
	}
	s.player.Balance += settlement.Delta

	now := s.clock.Now()
	record := RoundRecord{
		RoundID:      s.round.ID,
		Number:       len(s.history) + 1,
		Bet:          s.round.Bet(),
		Doubled:      s.round.Doubled(),
		Surrendered:  s.round.Surrendered(),
		PlayerCards:  s.round.PlayerCards(),
		DealerCards:  s.round.DealerCards(),
		PlayerTotal:  s.round.PlayerTotal(),
		DealerTotal:  s.round.DealerTotal(),
		Result:       settlement.Result,
		Delta:        settlement.Delta,
		BalanceAfter: s.player.Balance,
		StartedAt:    s.started,
		SettledAt:    now,
	}
	s.history = append(s.history, record)
	s.UpdatedAt = now

	s.logger.Info("round settled",
		"session", s.ID,
		"round", record.Number,
		"result", record.Result,
		"delta", record.Delta,
		"balance", record.BalanceAfter)
	return nil
}

// recoverEmptyShoe discards the current round without touching the balance
// and replaces the shoe so the next round can start.
func (s *Session) recoverEmptyShoe(cause error) error {
	s.logger.Warn("shoe ran out mid-round, round discarded", "session", s.ID, "err", cause)
	if err := s.rebuildShoe(); err != nil {
		return errors.Join(cause, err)
	}
	s.touch()
	return cause
}

func (s *Session) touch() {
	s.UpdatedAt = s.clock.Now()
}

// Player returns a copy of the player
func (s *Session) Player() Player {
	return *s.player
}

func (s *Session) Balance() Money {
	return s.player.Balance
}

func (s *Session) Shoe() *Shoe {
	return s.shoe
}

// Round returns the current or most recent round, or nil before the first deal.
func (s *Session) Round() *Round {
	return s.round
}

// History returns a copy of the settled rounds in play order.
func (s *Session) History() []RoundRecord {
	out := make([]RoundRecord, len(s.history))
	copy(out, s.history)
	return out
}

// LastRecord returns the most recently settled round.
func (s *Session) LastRecord() (RoundRecord, bool) {
	if len(s.history) == 0 {
		return RoundRecord{}, false
	}
	return s.history[len(s.history)-1], true
}

// Snapshot returns the session's visible state
func (s *Session) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		ID:            s.ID,
		Player:        *s.player,
		Dealer:        DealerName,
		Decks:         s.decks,
		ShoeRemaining: s.shoe.Remaining(),
		ShoeFraction:  s.shoe.RemainingFraction(),
		RoundsPlayed:  len(s.history),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.round != nil {
		r := s.round.Snapshot()
		snap.Round = &r
	}
	return snap
}
