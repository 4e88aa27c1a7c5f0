package account

import (
	"math"
	"sort"

	"github.com/cgpaboard/cgpaboard/core/grade"
)

// CloseThreshold is the largest diff (exclusive) still considered a close guess.
const CloseThreshold = 0.20

// Bands
const (
	BandClose = "close"
	BandOff   = "off"
)

// ViewRow is one line of a per-term leaderboard.
type ViewRow struct {
	Username string  `json:"username"`
	Guessed  float64 `json:"guessed"`
	Actual   float64 `json:"actual"`
	Diff     float64 `json:"diff"`
}

// ViewOrder is the direction rows are sorted on their actual value.
type ViewOrder int

const (
	OrderDescending ViewOrder = iota
	OrderAscending
)

// Diff is the absolute distance between a guess and the actual value, rounded to 2 decimals.
func Diff(guessed, actual float64) float64 {
	return grade.Round2(math.Abs(guessed - actual))
}

func Band(diff float64) string {
	if diff < CloseThreshold {
		return BandClose
	}
	return BandOff
}

// BuildView projects accounts onto one term. Accounts without an actual value for the term are left out.
// The sort is stable: accounts with equal actual values keep the order they were given in.
func BuildView(accounts []Account, t Term, order ViewOrder) []ViewRow {
	rows := make([]ViewRow, 0, len(accounts))
	for _, acc := range accounts {
		guessed, actual := ResolveTerm(acc, t)
		if !actual.Valid {
			continue
		}
		rows = append(rows, ViewRow{
			Username: acc.Username,
			Guessed:  guessed,
			Actual:   actual.Float64,
			Diff:     Diff(guessed, actual.Float64),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if order == OrderAscending {
			return rows[i].Actual < rows[j].Actual
		}
		return rows[i].Actual > rows[j].Actual
	})
	return rows
}
