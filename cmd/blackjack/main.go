package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/pterm/pterm"

	"github.com/calvinwijaya/blackjack-engine/internal/game"
)

var CLI struct {
	Name     string `short:"n" help:"Player name (prompted when empty)"`
	Decks    int    `short:"d" help:"Decks in the shoe, 1-12 (prompted when zero)"`
	Balance  int    `short:"b" default:"1000" help:"Starting balance"`
	Seed     int64  `help:"Shuffle seed, 0 for random"`
	LogLevel string `short:"l" default:"warn" help:"Log level: debug, info, warn, error"`
}

var actionLabels = map[game.Action]string{
	game.Hit:        "Hit",
	game.Stand:      "Stand",
	game.DoubleDown: "Double down",
	game.Surrender:  "Surrender",
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("blackjack"),
		kong.Description("Play blackjack against the dealer in the terminal"),
		kong.UsageOnError(),
	)

	logger := log.New(os.Stderr)
	level, err := log.ParseLevel(CLI.LogLevel)
	ctx.FatalIfErrorf(err)
	logger.SetLevel(level)

	name := CLI.Name
	if name == "" {
		name, _ = pterm.DefaultInteractiveTextInput.WithDefaultText("Welcome to the table. What is your name?").Show()
	}

	decks := CLI.Decks
	for game.ValidateDecks(decks) != nil {
		answer, _ := pterm.DefaultInteractiveTextInput.WithDefaultText(
			fmt.Sprintf("How many decks in the shoe (%d-%d)?", game.MinDecks, game.MaxDecks)).Show()
		n, err := strconv.Atoi(strings.TrimSpace(answer))
		if err != nil {
			pterm.Warning.Println("Looks like you didn't enter an integer.")
			continue
		}
		if err := game.ValidateDecks(n); err != nil {
			pterm.Warning.Println(err)
			continue
		}
		decks = n
	}

	sess, err := game.NewSession(game.SessionConfig{
		PlayerName:      name,
		Decks:           decks,
		StartingBalance: game.Units(CLI.Balance),
		Seed:            CLI.Seed,
		Logger:          logger,
	})
	ctx.FatalIfErrorf(err)

	for {
		playRound(sess)

		if sess.Balance() < game.Units(1) {
			pterm.Error.Println("You're out of money. Thanks for playing!")
			break
		}
		again, _ := pterm.DefaultInteractiveConfirm.WithDefaultText("Play another round?").WithDefaultValue(true).Show()
		if !again {
			break
		}
	}

	pterm.Info.Printfln("Final balance: %s after %d rounds", sess.Balance(), len(sess.History()))
}

func playRound(sess *game.Session) {
	pterm.DefaultSection.Println("New round")
	pterm.Info.Printfln("%s's balance: %s", sess.Player().Name, sess.Balance())

	var snap game.SessionSnapshot
	for {
		bet, ok := askBet()
		if !ok {
			continue
		}
		var err error
		snap, err = sess.StartRound(game.Units(bet))
		if errors.Is(err, game.ErrEmptyShoe) {
			pterm.Warning.Println("The shoe ran out while dealing. The round is void and the shoe has been reshuffled.")
			return
		}
		if err != nil {
			pterm.Warning.Println(err)
			continue
		}
		break
	}

	for snap.Round.State == game.PlayerTurn {
		showTable(snap)

		options := make([]string, 0, len(snap.Round.Actions))
		for _, a := range snap.Round.Actions {
			options = append(options, actionLabels[a])
		}
		choice, _ := pterm.DefaultInteractiveSelect.WithDefaultText("Your move").WithOptions(options).Show()

		action, err := game.ParseAction(choice)
		if err != nil {
			pterm.Warning.Println("Invalid response.")
			continue
		}

		next, err := sess.Act(action)
		snap = next
		if errors.Is(err, game.ErrEmptyShoe) {
			pterm.Warning.Println("The shoe ran out mid-round. The round is void and the shoe has been reshuffled.")
			return
		}
		if err != nil {
			pterm.Warning.Println(err)
		}
	}

	showTable(snap)
	showOutcome(snap)
}

func askBet() (int, bool) {
	answer, _ := pterm.DefaultInteractiveTextInput.WithDefaultText("How much to bet?").Show()
	bet, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		pterm.Warning.Println("Looks like you didn't enter an integer.")
		return 0, false
	}
	return bet, true
}

func showTable(snap game.SessionSnapshot) {
	r := snap.Round
	playerTotal := strconv.Itoa(r.PlayerTotal)
	if r.PlayerSoft {
		playerTotal = "soft " + playerTotal
	}

	pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"", "Cards", "Total"},
		{snap.Dealer, formatCards(r.DealerCards), strconv.Itoa(r.DealerTotal)},
		{snap.Player.Name, formatCards(r.PlayerCards), playerTotal},
	}).Render()
}

func showOutcome(snap game.SessionSnapshot) {
	s := snap.Round.Settlement
	if s == nil {
		return
	}

	msg := fmt.Sprintf("%s! (%+.2f) Balance: %s", s.Result, s.Delta.Float(), snap.Player.Balance)
	switch {
	case s.Result.IsWin():
		pterm.Success.Println(msg)
	case s.Delta == 0:
		pterm.Info.Println(msg)
	default:
		pterm.Error.Println(msg)
	}
}

func formatCards(cards []game.Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
