package game

import (
	"fmt"
	rand "math/rand/v2"
)

const (
	MinDecks     = 1
	MaxDecks     = 12
	CardsPerDeck = 52

	// ReshuffleThreshold is the remaining fraction below which a new shoe
	// is built before the next round starts.
	ReshuffleThreshold = 0.25
)

// Shoe is the multi-deck card supply cards are dealt from.
type Shoe struct {
	cards    []Card
	decks    int
	capacity int
	rng      *rand.Rand
}

// ValidateDecks checks a deck count against the supported range.
func ValidateDecks(decks int) error {
	if decks < MinDecks || decks > MaxDecks {
		return fmt.Errorf("%w: deck count %d outside [%d,%d]", ErrValidation, decks, MinDecks, MaxDecks)
	}
	return nil
}

// NewShoe builds an unshuffled shoe of the given number of standard decks.
// A nil rng uses a time-seeded source.
func NewShoe(decks int, rng *rand.Rand) (*Shoe, error) {
	if err := ValidateDecks(decks); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = NewRand(0)
	}

	capacity := decks * CardsPerDeck
	shoe := &Shoe{
		cards:    make([]Card, 0, capacity),
		decks:    decks,
		capacity: capacity,
		rng:      rng,
	}

	for i := 0; i < decks; i++ {
		for _, suit := range Suits {
			for _, rank := range Ranks {
				shoe.cards = append(shoe.cards, Card{Suit: suit, Rank: rank})
			}
		}
	}

	return shoe, nil
}

// NewStackedShoe returns a shoe that deals cards in exactly the given order.
// It is meant for tests and replays; its capacity is the number of cards given.
func NewStackedShoe(cards ...Card) *Shoe {
	stacked := make([]Card, len(cards))
	copy(stacked, cards)
	return &Shoe{
		cards:    stacked,
		decks:    1,
		capacity: len(cards),
		rng:      NewRand(1),
	}
}

// Shuffle randomizes the order of the remaining cards
func (s *Shoe) Shuffle() {
	// Fisher-Yates shuffle algorithm
	for i := len(s.cards) - 1; i > 0; i-- {
		j := s.rng.IntN(i + 1)
		s.cards[i], s.cards[j] = s.cards[j], s.cards[i]
	}
}

// DealOne removes and returns the front card of the shoe
func (s *Shoe) DealOne() (Card, error) {
	if len(s.cards) == 0 {
		return Card{}, ErrEmptyShoe
	}

	card := s.cards[0]
	s.cards = s.cards[1:]
	return card, nil
}

// Remaining returns the number of cards left in the shoe
func (s *Shoe) Remaining() int {
	return len(s.cards)
}

func (s *Shoe) Capacity() int {
	return s.capacity
}

func (s *Shoe) Decks() int {
	return s.decks
}

// RemainingFraction returns the share of the shoe not yet dealt.
func (s *Shoe) RemainingFraction() float64 {
	if s.capacity == 0 {
		return 0
	}
	return float64(len(s.cards)) / float64(s.capacity)
}

// NeedsReshuffle reports whether the shoe has dropped below ReshuffleThreshold.
func (s *Shoe) NeedsReshuffle() bool {
	return s.RemainingFraction() < ReshuffleThreshold
}
