package account

import (
	"github.com/volatiletech/null/v8"

	"github.com/cgpaboard/cgpaboard/core"
)

// RosterEntry pre-registers a participant: the values an account is seeded with on first login.
type RosterEntry struct {
	Username string
	Guess    float64      // semester 5 prediction, stored in the legacy GuessedCGPA field
	Actual   null.Float64 // pre-recorded semester 5 actual, stored in the legacy ActualCGPA field
	IsAdmin  bool
}

// Roster is the ordered, read-only pre-registration table.
type Roster struct {
	entries []RosterEntry
	index   map[string]int
}

// NewRoster normalizes the configured entries. Blank usernames are skipped; on duplicates the first entry wins.
func NewRoster(entries ...core.RosterEntry) Roster {
	r := Roster{
		entries: make([]RosterEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		uname := core.CleanString(e.Username, true /* lower */)
		if uname == "" {
			continue
		}
		if _, dup := r.index[uname]; dup {
			continue
		}
		r.index[uname] = len(r.entries)
		r.entries = append(r.entries, RosterEntry{
			Username: uname,
			Guess:    e.Guess,
			Actual:   null.Float64FromPtr(e.Actual),
			IsAdmin:  e.IsAdmin,
		})
	}
	return r
}

// Lookup finds the entry for a username, case-insensitively.
func (r Roster) Lookup(username string) (RosterEntry, bool) {
	i, ok := r.index[core.CleanString(username, true /* lower */)]
	if !ok {
		return RosterEntry{}, false
	}
	return r.entries[i], true
}

func (r Roster) Entries() []RosterEntry {
	entries := make([]RosterEntry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

func (r Roster) Len() int { return len(r.entries) }

// resolution is the outcome of the identity bootstrap for one username.
type resolution int

const (
	resolvedExisting resolution = iota
	provisionFromRoster
	provisionDefault
)

func (r resolution) String() string {
	switch r {
	case resolvedExisting:
		return "existing"
	case provisionFromRoster:
		return "roster"
	case provisionDefault:
		return "default"
	}
	return "unknown"
}

// planAccount picks how a normalized username resolves, given what the store and the roster know about it.
// For the two provisioning outcomes the returned Account is the template to create
// (no ID, timestamps or term states yet).
func planAccount(username string, existing *Account, entry *RosterEntry) (resolution, Account) {
	if existing != nil {
		return resolvedExisting, *existing
	}
	if entry != nil {
		return provisionFromRoster, Account{
			Username:    username,
			GuessedCGPA: entry.Guess,
			ActualCGPA:  entry.Actual,
			IsAdmin:     entry.IsAdmin,
		}
	}
	return provisionDefault, Account{Username: username}
}
