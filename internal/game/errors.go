package game

import "errors"

var (
	// ErrValidation reports bad input: deck count, bet amount or funds.
	// No state is changed when it is returned.
	ErrValidation = errors.New("validation error")

	// ErrEmptyShoe is returned when a card is requested from a drained shoe.
	// The round in progress is aborted and must be discarded.
	ErrEmptyShoe = errors.New("shoe is empty")

	// ErrIllegalAction reports an operation that is not allowed in the
	// current round state. No state is changed when it is returned.
	ErrIllegalAction = errors.New("illegal action")
)
