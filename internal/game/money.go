package game

import (
	"encoding/json"
	"fmt"
)

// Money is an amount in cents. Bets are whole units, so the 3:2 blackjack
// payout and the half-bet surrender are always exact.
type Money int64

const centsPerUnit = 100

// Units converts a whole number of betting units to Money.
func Units(n int) Money {
	return Money(n) * centsPerUnit
}

// IsWhole reports whether m has no fractional part.
func (m Money) IsWhole() bool {
	return m%centsPerUnit == 0
}

// Float returns m as a number of units.
func (m Money) Float() float64 {
	return float64(m) / centsPerUnit
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/centsPerUnit, v%centsPerUnit)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Float())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f >= 0 {
		*m = Money(f*centsPerUnit + 0.5)
	} else {
		*m = Money(f*centsPerUnit - 0.5)
	}
	return nil
}
