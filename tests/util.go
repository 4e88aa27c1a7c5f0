package testutil

import (
	"context"
	"io"
	"log"
	"net/mail"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/cgpaboard/cgpaboard/core"
	"github.com/cgpaboard/cgpaboard/core/account"
	logsvc "github.com/cgpaboard/cgpaboard/services/logger"
	"github.com/cgpaboard/cgpaboard/storage/database"
)

const (
	AdminSecret = "let-me-in"
	SecretKey   = "test-secret-key"
)

// NewConfig returns the configuration tests run with: no debug, semester 4 locked and a small roster.
func NewConfig() *core.Config {
	return &core.Config{
		Env:                "TEST",
		TestMode:           true,
		AppName:            "CGPA Board",
		SecretKey:          SecretKey,
		AdminSecret:        AdminSecret,
		JWTExpirationDelta: time.Hour,
		DefaultFromEmail:   mail.Address{Name: "CGPA Board", Address: "noreply@cgpaboard.test"},
		ResetNotifyTo:      []mail.Address{{Name: "Ops", Address: "ops@cgpaboard.test"}},
		LockedTerms:        []int{4},
		Roster: []core.RosterEntry{
			{Username: "divij", Guess: 9.38},
			{Username: "Akshar", Guess: 9.21},
			{Username: "tushar", Guess: 8.74, Actual: Float(9.08), IsAdmin: true},
			{Username: "drip queen", Guess: 8.5},
		},
		Redis: core.RedisConfig{TTL: time.Minute},
	}
}

// NewLogger returns a logger that reports nowhere.
func NewLogger() core.Logger {
	l := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), NewConfig())
	l.Enable(false)
	return l
}

func Float(f float64) *float64 { return &f }

// AccountOpt customizes an account built by CreateAccount.
type AccountOpt func(*account.Account)

func WithAdmin() AccountOpt { return func(a *account.Account) { a.IsAdmin = true } }

func WithGuess(g float64) AccountOpt { return func(a *account.Account) { a.GuessedCGPA = g } }

func WithActual(f float64) AccountOpt {
	return func(a *account.Account) { a.ActualCGPA = null.Float64From(f) }
}

func WithSem5(guessed float64, actual *float64) AccountOpt {
	return func(a *account.Account) {
		a.Sem5Guessed = guessed
		a.Sem5Actual = null.Float64FromPtr(actual)
	}
}

func WithSem4(guessed float64, actual *float64) AccountOpt {
	return func(a *account.Account) {
		a.Sem4Guessed = guessed
		a.Sem4Actual = null.Float64FromPtr(actual)
	}
}

func WithCreatedAt(t time.Time) AccountOpt {
	t = t.UTC().Truncate(time.Microsecond)
	return func(a *account.Account) { a.CreatedAt, a.UpdatedAt = t, t }
}

// NewAccount builds an account with semester 4 locked and semester 5 open.
func NewAccount(uname string, opts ...AccountOpt) account.Account {
	now := time.Now().UTC().Truncate(time.Microsecond) // postgres precision
	acc := account.Account{
		ID:        uuid.NewString(),
		Username:  uname,
		Sem4State: account.TermLocked,
		Sem5State: account.TermOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(&acc)
	}
	return acc
}

// CreateAccount stores an account straight through the repository.
func CreateAccount(t *testing.T, repo account.Repository, uname string, opts ...AccountOpt) account.Account {
	t.Helper()
	acc, err := repo.CreateAccount(context.Background(), NewAccount(uname, opts...))
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc
}

// OpenDB connects to the Postgres database named by TEST_DATABASE_URL, migrates it and empties it.
// The test is skipped when the variable is not set.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sqlx.Open() failed: %v", err)
	}
	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if _, err = db.Exec("TRUNCATE account"); err != nil {
		t.Fatalf("truncating account failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
