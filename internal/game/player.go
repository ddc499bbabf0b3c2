package game

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const DealerName = "Dealer"

// DefaultStartingBalance is the balance a new player sits down with.
var DefaultStartingBalance = Units(1000)

// Player is the human party. The balance changes only when a round settles.
type Player struct {
	Name    string `json:"name"`
	Balance Money  `json:"balance"`
}

// NewPlayer creates a player with a capitalized name
func NewPlayer(name string, balance Money) *Player {
	return &Player{
		Name:    capitalize(name),
		Balance: balance,
	}
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
