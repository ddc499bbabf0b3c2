package game

import (
	"fmt"
	"strings"
)

type Suit string
type Rank string

const (
	Clubs    Suit = "Clubs"
	Diamonds Suit = "Diamonds"
	Hearts   Suit = "Hearts"
	Spades   Suit = "Spades"
)

const (
	Two   Rank = "2"
	Three Rank = "3"
	Four  Rank = "4"
	Five  Rank = "5"
	Six   Rank = "6"
	Seven Rank = "7"
	Eight Rank = "8"
	Nine  Rank = "9"
	Ten   Rank = "T"
	Jack  Rank = "J"
	Queen Rank = "Q"
	King  Rank = "K"
	Ace   Rank = "A"
)

// Suits and Ranks list a standard deck in construction order.
var (
	Suits = []Suit{Clubs, Diamonds, Hearts, Spades}
	Ranks = []Rank{Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}
)

type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// Value returns the base blackjack value of the card. Aces count 1 here;
// the soft bonus is applied by Hand.Total.
func (c Card) Value() int {
	switch c.Rank {
	case Ace:
		return 1
	case Ten, Jack, Queen, King:
		return 10
	case Two:
		return 2
	case Three:
		return 3
	case Four:
		return 4
	case Five:
		return 5
	case Six:
		return 6
	case Seven:
		return 7
	case Eight:
		return 8
	case Nine:
		return 9
	default:
		return 0
	}
}

// String renders the card as rank followed by the lowercase suit initial, e.g. "Ah".
func (c Card) String() string {
	if len(c.Suit) == 0 {
		return string(c.Rank) + "?"
	}
	return string(c.Rank) + strings.ToLower(string(c.Suit[0]))
}

// ParseCard reads the two-character notation produced by Card.String.
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}

	rank := Rank(strings.ToUpper(s[:1]))
	validRank := false
	for _, r := range Ranks {
		if r == rank {
			validRank = true
			break
		}
	}
	if !validRank {
		return Card{}, fmt.Errorf("invalid rank in card %q", s)
	}

	var suit Suit
	switch strings.ToLower(s[1:]) {
	case "c":
		suit = Clubs
	case "d":
		suit = Diamonds
	case "h":
		suit = Hearts
	case "s":
		suit = Spades
	default:
		return Card{}, fmt.Errorf("invalid suit in card %q", s)
	}

	return Card{Suit: suit, Rank: rank}, nil
}

// ParseCards parses a whitespace separated list of cards, e.g. "Ah Kd".
func ParseCards(s string) ([]Card, error) {
	fields := strings.Fields(s)
	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}
