package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cgpaboard/cgpaboard/core"
	"github.com/cgpaboard/cgpaboard/core/account"
)

const uniqueViolation = "23505"

const accountColumns = `id, username, guessed_cgpa, actual_cgpa, sem4_guessed, sem4_actual, sem4_state,
	sem5_guessed, sem5_actual, sem5_state, is_admin, created_at, updated_at`

// term columns, indexed by term. The legacy column is written alongside the semester 5 one.
var termColumns = map[account.Term]struct{ actual, state, legacy string }{
	account.Term4: {actual: "sem4_actual", state: "sem4_state"},
	account.Term5: {actual: "sem5_actual", state: "sem5_state", legacy: "actual_cgpa"},
}

type accountRow struct {
	ID          string       `db:"id"`
	Username    string       `db:"username"`
	GuessedCGPA float64      `db:"guessed_cgpa"`
	ActualCGPA  null.Float64 `db:"actual_cgpa"`
	Sem4Guessed float64      `db:"sem4_guessed"`
	Sem4Actual  null.Float64 `db:"sem4_actual"`
	Sem4State   string       `db:"sem4_state"`
	Sem5Guessed float64      `db:"sem5_guessed"`
	Sem5Actual  null.Float64 `db:"sem5_actual"`
	Sem5State   string       `db:"sem5_state"`
	IsAdmin     bool         `db:"is_admin"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

type accountRepository struct {
	exec core.DBExecutor
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(exec core.DBExecutor) *accountRepository {
	return &accountRepository{exec: exec}
}

func (repo accountRepository) boil(acc account.Account) accountRow {
	return accountRow{
		ID:          acc.ID,
		Username:    acc.Username,
		GuessedCGPA: acc.GuessedCGPA,
		ActualCGPA:  acc.ActualCGPA,
		Sem4Guessed: acc.Sem4Guessed,
		Sem4Actual:  acc.Sem4Actual,
		Sem4State:   string(acc.Sem4State),
		Sem5Guessed: acc.Sem5Guessed,
		Sem5Actual:  acc.Sem5Actual,
		Sem5State:   string(acc.Sem5State),
		IsAdmin:     acc.IsAdmin,
		CreatedAt:   acc.CreatedAt.UTC(),
		UpdatedAt:   acc.UpdatedAt.UTC(),
	}
}

func (repo accountRepository) unboil(row accountRow) account.Account {
	return account.Account{
		ID:          row.ID,
		Username:    row.Username,
		GuessedCGPA: row.GuessedCGPA,
		ActualCGPA:  row.ActualCGPA,
		Sem4Guessed: row.Sem4Guessed,
		Sem4Actual:  row.Sem4Actual,
		Sem4State:   account.TermState(row.Sem4State),
		Sem5Guessed: row.Sem5Guessed,
		Sem5Actual:  row.Sem5Actual,
		Sem5State:   account.TermState(row.Sem5State),
		IsAdmin:     row.IsAdmin,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

// trapErr maps psql errors to account errors. Anything that is not a query outcome is an outage.
func (repo accountRepository) trapErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return account.ErrNotFound
	}
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Code == uniqueViolation {
			return account.ErrDuplicateKey
		}
		return errors.Wrap(err, msg)
	}
	return core.NewUnavailableError(err, msg)
}

func (repo accountRepository) FindByUsername(ctx context.Context, username string) (account.Account, error) {
	var row accountRow
	q := "SELECT " + accountColumns + " FROM account WHERE username = $1"
	if err := repo.exec.GetContext(ctx, &row, q, username); err != nil {
		return account.Account{}, repo.trapErr(err, "finding account by username")
	}
	return repo.unboil(row), nil
}

func (repo accountRepository) CreateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	q := `INSERT INTO account (` + accountColumns + `)
	VALUES (:id, :username, :guessed_cgpa, :actual_cgpa, :sem4_guessed, :sem4_actual, :sem4_state,
		:sem5_guessed, :sem5_actual, :sem5_state, :is_admin, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, repo.boil(acc)); err != nil {
		return account.Account{}, repo.trapErr(err, "inserting account")
	}
	return acc, nil
}

// UpdateTermActual writes only if the term is open: a locked term leaves the row untouched,
// and the follow-up lookup tells a missing account from a locked one.
func (repo accountRepository) UpdateTermActual(ctx context.Context, username string, t account.Term, value null.Float64) (account.Account, error) {
	cols, ok := termColumns[t]
	if !ok {
		return account.Account{}, errors.Errorf("unknown term %d", t)
	}
	set := cols.actual + " = $1"
	if cols.legacy != "" {
		set += ", " + cols.legacy + " = $1"
	}
	q := "UPDATE account SET " + set + ", updated_at = $2 WHERE username = $3 AND " + cols.state + " = $4 RETURNING " + accountColumns

	var row accountRow
	err := repo.exec.GetContext(ctx, &row, q, value, time.Now().UTC(), username, string(account.TermOpen))
	if err == nil {
		return repo.unboil(row), nil
	}
	if err != sql.ErrNoRows {
		return account.Account{}, repo.trapErr(err, "updating term actual")
	}

	if _, err = repo.FindByUsername(ctx, username); err != nil {
		return account.Account{}, err
	}
	return account.Account{}, account.ErrTermLocked
}

// ClearAllTerm5Actual runs as one statement, so concurrent readers see every row before or every row after.
func (repo accountRepository) ClearAllTerm5Actual(ctx context.Context) (int, error) {
	q := `UPDATE account SET sem5_actual = NULL, actual_cgpa = NULL, updated_at = $1
	WHERE sem5_actual IS NOT NULL OR actual_cgpa IS NOT NULL`
	res, err := repo.exec.ExecContext(ctx, q, time.Now().UTC())
	if err != nil {
		return 0, repo.trapErr(err, "clearing semester 5 actuals")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting cleared accounts")
	}
	return int(n), nil
}

func (repo accountRepository) ListAll(ctx context.Context) ([]account.Account, error) {
	var rows []accountRow
	q := "SELECT " + accountColumns + " FROM account ORDER BY created_at, id"
	if err := repo.exec.SelectContext(ctx, &rows, q); err != nil {
		return nil, repo.trapErr(err, "listing accounts")
	}
	accounts := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, repo.unboil(row))
	}
	return accounts, nil
}
