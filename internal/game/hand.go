package game

import "strings"

const (
	blackjackTotal = 21
	softAceBonus   = 10
)

// Hand is the ordered set of cards held by one party during a round.
// The total is derived on every call and never cached.
type Hand struct {
	cards []Card
}

// NewHand returns a hand holding the given cards in order.
func NewHand(cards ...Card) *Hand {
	h := &Hand{}
	for _, c := range cards {
		h.AddCard(c)
	}
	return h
}

// AddCard appends a card to the hand
func (h *Hand) AddCard(c Card) {
	h.cards = append(h.cards, c)
}

// Reset empties the hand for a new round
func (h *Hand) Reset() {
	h.cards = nil
}

// Cards returns a copy of the cards in dealing order
func (h *Hand) Cards() []Card {
	out := make([]Card, len(h.cards))
	copy(out, h.cards)
	return out
}

func (h *Hand) Size() int {
	return len(h.cards)
}

// Total returns the best blackjack value of the hand: aces count 1, and
// each ace adds 10 more while that keeps the total at or below 21.
func (h *Hand) Total() int {
	total, _ := h.score()
	return total
}

// IsSoft reports whether an ace is currently counted as 11.
func (h *Hand) IsSoft() bool {
	_, soft := h.score()
	return soft
}

func (h *Hand) score() (int, bool) {
	total := 0
	aces := 0
	for _, c := range h.cards {
		if c.Rank == Ace {
			aces++
		}
		total += c.Value()
	}

	soft := false
	for aces > 0 && total+softAceBonus <= blackjackTotal {
		total += softAceBonus
		aces--
		soft = true
	}
	return total, soft
}

// IsBlackjack reports a natural: two cards totalling 21.
func (h *Hand) IsBlackjack() bool {
	return len(h.cards) == 2 && h.Total() == blackjackTotal
}

func (h *Hand) IsBust() bool {
	return h.Total() > blackjackTotal
}

func (h *Hand) String() string {
	parts := make([]string, len(h.cards))
	for i, c := range h.cards {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
