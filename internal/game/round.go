package game

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type State string

const (
	Dealing    State = "dealing"    // Initial cards are being dealt
	PlayerTurn State = "playerTurn" // Waiting for player decisions
	DealerTurn State = "dealerTurn" // Player is done, dealer draws next
	Settled    State = "settled"    // Round is over and ready for settlement
	Aborted    State = "aborted"    // Shoe ran dry, round must be discarded
)

type Action string

const (
	Hit        Action = "hit"
	Stand      Action = "stand"
	DoubleDown Action = "double"
	Surrender  Action = "surrender"
)

// ParseAction accepts an action name or its first letter, in any case.
// "r" is accepted for surrender since "s" means stand.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "h", "hit":
		return Hit, nil
	case "s", "stand":
		return Stand, nil
	case "d", "double", "doubledown", "double down":
		return DoubleDown, nil
	case "r", "surrender":
		return Surrender, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrIllegalAction, s)
	}
}

const dealerStandTotal = 17

// Round is one bet cycle: deal, player decisions, dealer play, settlement.
// A Round exclusively owns both hands; it is not safe for concurrent use.
type Round struct {
	ID string

	shoe    *Shoe
	player  *Hand
	dealer  *Hand
	balance Money
	bet     Money

	stood       bool
	surrendered bool
	doubled     bool

	state      State
	settlement *Settlement
}

// RoundSnapshot is a read-only view of a round for display.
type RoundSnapshot struct {
	ID          string      `json:"id"`
	State       State       `json:"state"`
	Bet         Money       `json:"bet"`
	PlayerCards []Card      `json:"playerCards"`
	PlayerTotal int         `json:"playerTotal"`
	PlayerSoft  bool        `json:"playerSoft"`
	DealerCards []Card      `json:"dealerCards"`
	DealerTotal int         `json:"dealerTotal"`
	Doubled     bool        `json:"doubled"`
	Surrendered bool        `json:"surrendered"`
	Actions     []Action    `json:"actions"`
	Settlement  *Settlement `json:"settlement,omitempty"`
}

// StartRound validates the bet against the player's balance and deals the
// opening cards: two to the player, one to the dealer.
func StartRound(shoe *Shoe, balance, bet Money) (*Round, error) {
	if shoe == nil {
		return nil, fmt.Errorf("%w: no shoe", ErrValidation)
	}
	if bet <= 0 || !bet.IsWhole() {
		return nil, fmt.Errorf("%w: bet must be a positive whole amount, got %s", ErrValidation, bet)
	}
	if bet > balance {
		return nil, fmt.Errorf("%w: bet %s exceeds balance %s", ErrValidation, bet, balance)
	}

	r := &Round{
		ID:      uuid.New().String(),
		shoe:    shoe,
		player:  NewHand(),
		dealer:  NewHand(),
		balance: balance,
		bet:     bet,
		state:   Dealing,
	}

	for _, h := range []*Hand{r.player, r.player, r.dealer} {
		if err := r.deal(h); err != nil {
			return nil, err
		}
	}

	r.state = PlayerTurn
	r.endPlayerTurnIfDone()
	return r, nil
}

func (r *Round) deal(h *Hand) error {
	card, err := r.shoe.DealOne()
	if err != nil {
		r.state = Aborted
		return fmt.Errorf("round %s: %w", r.ID, err)
	}
	h.AddCard(card)
	return nil
}

// ApplyPlayerAction performs one player decision and returns the new state.
// Rejected actions leave the round unchanged.
func (r *Round) ApplyPlayerAction(a Action) (State, error) {
	if r.state != PlayerTurn {
		return r.state, fmt.Errorf("%w: %s not allowed in state %s", ErrIllegalAction, a, r.state)
	}

	switch a {
	case Hit:
		if err := r.deal(r.player); err != nil {
			return r.state, err
		}

	case Stand:
		r.stood = true

	case DoubleDown:
		if !r.firstDecision() {
			return r.state, fmt.Errorf("%w: double down only allowed on the first two cards", ErrIllegalAction)
		}
		if r.bet*2 > r.balance {
			return r.state, fmt.Errorf("%w: balance %s too low to double %s", ErrValidation, r.balance, r.bet)
		}
		if err := r.deal(r.player); err != nil {
			return r.state, err
		}
		r.bet *= 2
		r.doubled = true
		r.stood = true

	case Surrender:
		if !r.firstDecision() {
			return r.state, fmt.Errorf("%w: surrender only allowed on the first two cards", ErrIllegalAction)
		}
		r.surrendered = true
		r.stood = true

	default:
		return r.state, fmt.Errorf("%w: unknown action %q", ErrIllegalAction, a)
	}

	r.endPlayerTurnIfDone()
	return r.state, nil
}

func (r *Round) firstDecision() bool {
	return r.player.Size() == 2
}

// endPlayerTurnIfDone moves out of PlayerTurn once the player stood,
// surrendered or reached 21. Surrender and bust skip the dealer.
func (r *Round) endPlayerTurnIfDone() {
	if r.state != PlayerTurn {
		return
	}
	switch {
	case r.surrendered, r.player.IsBust():
		r.state = Settled
	case r.stood, r.player.Total() >= blackjackTotal:
		r.state = DealerTurn
	}
}

// RunDealerTurn draws dealer cards until the total reaches 17 or more.
// The dealer stands on every 17, soft or hard.
func (r *Round) RunDealerTurn() error {
	if r.state != DealerTurn {
		return fmt.Errorf("%w: dealer cannot play in state %s", ErrIllegalAction, r.state)
	}

	for r.dealer.Total() < dealerStandTotal {
		if err := r.deal(r.dealer); err != nil {
			return err
		}
	}

	r.state = Settled
	return nil
}

// Settle computes the round's outcome. It may be called once, after the
// round reaches Settled.
func (r *Round) Settle() (Settlement, error) {
	if r.state != Settled {
		return Settlement{}, fmt.Errorf("%w: cannot settle in state %s", ErrIllegalAction, r.state)
	}
	if r.settlement != nil {
		return Settlement{}, fmt.Errorf("%w: round %s already settled", ErrIllegalAction, r.ID)
	}

	var s Settlement
	if r.surrendered {
		s = SurrenderSettlement(r.bet)
	} else {
		s = Evaluate(r.player, r.dealer, r.bet)
	}
	r.settlement = &s
	return s, nil
}

// AvailableActions lists the decisions the player may make right now.
func (r *Round) AvailableActions() []Action {
	if r.state != PlayerTurn {
		return nil
	}
	if r.firstDecision() {
		return []Action{Hit, Stand, DoubleDown, Surrender}
	}
	return []Action{Hit, Stand}
}

func (r *Round) State() State { return r.state }
func (r *Round) Bet() Money { return r.bet }
func (r *Round) Doubled() bool { return r.doubled }
func (r *Round) Surrendered() bool { return r.surrendered }
func (r *Round) Stood() bool { return r.stood }
func (r *Round) PlayerCards() []Card { return r.player.Cards() }
func (r *Round) DealerCards() []Card { return r.dealer.Cards() }
func (r *Round) PlayerTotal() int { return r.player.Total() }
func (r *Round) DealerTotal() int { return r.dealer.Total() }

// Settlement returns the outcome once Settle has run.
func (r *Round) Settlement() (Settlement, bool) {
	if r.settlement == nil {
		return Settlement{}, false
	}
	return *r.settlement, true
}

// Snapshot returns a copy of the round's visible state
func (r *Round) Snapshot() RoundSnapshot {
	snap := RoundSnapshot{
		ID:          r.ID,
		State:       r.state,
		Bet:         r.bet,
		PlayerCards: r.player.Cards(),
		PlayerTotal: r.player.Total(),
		PlayerSoft:  r.player.IsSoft(),
		DealerCards: r.dealer.Cards(),
		DealerTotal: r.dealer.Total(),
		Doubled:     r.doubled,
		Surrendered: r.surrendered,
		Actions:     r.AvailableActions(),
	}
	if r.settlement != nil {
		s := *r.settlement
		snap.Settlement = &s
	}
	return snap
}
