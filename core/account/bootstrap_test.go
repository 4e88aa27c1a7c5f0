package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/cgpaboard/cgpaboard/core"
)

func TestNewRoster(t *testing.T) {
	actual := 9.08
	roster := NewRoster(
		core.RosterEntry{Username: "  Tushar ", Guess: 8.74, Actual: &actual, IsAdmin: true},
		core.RosterEntry{Username: "divij", Guess: 9.38},
		core.RosterEntry{Username: "DIVIJ", Guess: 1},
		core.RosterEntry{Username: "   "},
	)

	assert.Equal(t, 2, roster.Len())
	assert.Equal(t, []RosterEntry{
		{Username: "tushar", Guess: 8.74, Actual: null.Float64From(9.08), IsAdmin: true},
		{Username: "divij", Guess: 9.38},
	}, roster.Entries())

	tests := []struct {
		name   string
		uname  string
		want   RosterEntry
		wantOk bool
	}{
		{name: "exact", uname: "divij", want: RosterEntry{Username: "divij", Guess: 9.38}, wantOk: true},
		{name: "case-insensitive", uname: "TuShAr", want: RosterEntry{Username: "tushar", Guess: 8.74, Actual: null.Float64From(9.08), IsAdmin: true}, wantOk: true},
		{name: "surrounding spaces", uname: " divij\t", want: RosterEntry{Username: "divij", Guess: 9.38}, wantOk: true},
		{name: "unknown", uname: "nobody"},
		{name: "blank", uname: " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := roster.Lookup(tt.uname)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanAccount(t *testing.T) {
	existing := Account{ID: "42", Username: "piyush", GuessedCGPA: 8.54, Sem5State: TermOpen}
	entry := RosterEntry{Username: "tushar", Guess: 8.74, Actual: null.Float64From(9.08), IsAdmin: true}

	tests := []struct {
		name     string
		uname    string
		existing *Account
		entry    *RosterEntry
		want     resolution
		wantAcc  Account
	}{
		{
			name:     "existing account wins over roster",
			uname:    "piyush",
			existing: &existing,
			entry:    &RosterEntry{Username: "piyush", Guess: 1, IsAdmin: true},
			want:     resolvedExisting,
			wantAcc:  existing,
		},
		{
			name:    "roster seeded",
			uname:   "tushar",
			entry:   &entry,
			want:    provisionFromRoster,
			wantAcc: Account{Username: "tushar", GuessedCGPA: 8.74, ActualCGPA: null.Float64From(9.08), IsAdmin: true},
		},
		{
			name:    "roster without actual",
			uname:   "divij",
			entry:   &RosterEntry{Username: "divij", Guess: 9.38},
			want:    provisionFromRoster,
			wantAcc: Account{Username: "divij", GuessedCGPA: 9.38},
		},
		{
			name:    "default",
			uname:   "stranger",
			want:    provisionDefault,
			wantAcc: Account{Username: "stranger"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, acc := planAccount(tt.uname, tt.existing, tt.entry)
			assert.Equal(t, tt.want, got, "resolution %v, want %v", got, tt.want)
			assert.Equal(t, tt.wantAcc, acc)
		})
	}
}
