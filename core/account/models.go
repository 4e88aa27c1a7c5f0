package account

import (
	"strconv"
	"time"

	"github.com/volatiletech/null/v8"
)

// Roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Term is an academic semester. Only terms 4 (historical) and 5 (current) are tracked.
type Term int

const (
	Term4 Term = 4
	Term5 Term = 5
)

var Terms = []Term{Term4, Term5}

func (t Term) Valid() bool { return t == Term4 || t == Term5 }

func (t Term) String() string { return "semester " + strconv.Itoa(int(t)) }

// TermState tells whether an account's actual value for a term may still be written.
type TermState string

const (
	TermOpen   TermState = "open"
	TermLocked TermState = "locked"
)

type Account struct {
	ID          string       `json:"id"`
	Username    string       `json:"username"`
	GuessedCGPA float64      `json:"guessedCGPA"` // legacy prediction, stands for semester 5
	ActualCGPA  null.Float64 `json:"actualCGPA"`  // legacy actual, stands for semester 5
	Sem4Guessed float64      `json:"sem4Guessed"`
	Sem4Actual  null.Float64 `json:"sem4Actual"`
	Sem4State   TermState    `json:"sem4State"`
	Sem5Guessed float64      `json:"sem5Guessed"`
	Sem5Actual  null.Float64 `json:"sem5Actual"`
	Sem5State   TermState    `json:"sem5State"`
	IsAdmin     bool         `json:"isAdmin"`
	CreatedAt   time.Time    `json:"createdAt"` // UTC
	UpdatedAt   time.Time    `json:"updatedAt"` // UTC
}

func (a Account) Role() string {
	if a.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}

func (a Account) Identity() Identity {
	return Identity{Name: a.Username, Role: a.Role()}
}

func (a Account) TermState(t Term) TermState {
	switch t {
	case Term4:
		return a.Sem4State
	case Term5:
		return a.Sem5State
	}
	return TermLocked
}

func (a Account) IsLocked(t Term) bool {
	return a.TermState(t) != TermOpen
}

// Identity is what a session knows about its account.
type Identity struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// ResolveTerm returns the guessed and actual values shown for a term.
//
// Semester 5 predates per-term tracking: accounts created back then only carry the legacy
// GuessedCGPA / ActualCGPA fields, so those are used when the semester 5 fields are unset.
// Semester 4 has no legacy counterpart.
func ResolveTerm(a Account, t Term) (guessed float64, actual null.Float64) {
	switch t {
	case Term4:
		return a.Sem4Guessed, a.Sem4Actual
	case Term5:
		guessed = a.GuessedCGPA
		if a.Sem5Guessed > 0 {
			guessed = a.Sem5Guessed
		}
		actual = a.ActualCGPA
		if a.Sem5Actual.Valid {
			actual = a.Sem5Actual
		}
		return guessed, actual
	}
	return 0, null.Float64{}
}
