package game

type Result string

const (
	ResultBust            Result = "Bust"
	ResultDealerBlackjack Result = "Dealer blackjack"
	ResultPush            Result = "Push"
	ResultBlackjack       Result = "Blackjack"
	ResultWin             Result = "Win"
	ResultLose            Result = "Lose"
	ResultSurrender       Result = "Surrender"
)

// IsWin returns true if this result pays the player
func (r Result) IsWin() bool {
	return r == ResultWin || r == ResultBlackjack
}

// Settlement is the balance change and label produced when a round ends.
type Settlement struct {
	Delta  Money  `json:"delta"`
	Result Result `json:"result"`
}

// Evaluate settles two finished hands for the given bet. The first matching
// rule wins, so simultaneous blackjacks push instead of paying 3:2.
// Surrendered rounds settle on their own and never reach this function.
func Evaluate(player, dealer *Hand, bet Money) Settlement {
	playerTotal := player.Total()
	dealerTotal := dealer.Total()

	switch {
	case playerTotal > blackjackTotal:
		return Settlement{Delta: -bet, Result: ResultBust}
	case dealer.IsBlackjack():
		if player.IsBlackjack() {
			return Settlement{Delta: 0, Result: ResultPush}
		}
		return Settlement{Delta: -bet, Result: ResultDealerBlackjack}
	case player.IsBlackjack():
		return Settlement{Delta: bet * 3 / 2, Result: ResultBlackjack}
	case dealerTotal < playerTotal:
		return Settlement{Delta: bet, Result: ResultWin}
	case playerTotal < dealerTotal && dealerTotal <= blackjackTotal:
		return Settlement{Delta: -bet, Result: ResultLose}
	case dealerTotal == playerTotal:
		return Settlement{Delta: 0, Result: ResultPush}
	default:
		// dealer busted
		return Settlement{Delta: bet, Result: ResultWin}
	}
}

// SurrenderSettlement is the fixed half-bet loss taken on surrender.
func SurrenderSettlement(bet Money) Settlement {
	return Settlement{Delta: -bet / 2, Result: ResultSurrender}
}
