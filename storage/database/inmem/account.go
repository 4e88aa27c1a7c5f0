package inmemdb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cgpaboard/cgpaboard/core/account"
)

type accountRepository struct {
	db *accountTable
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *DB) *accountRepository {
	return &accountRepository{db: db.account}
}

func (repo *accountRepository) FindByUsername(_ context.Context, username string) (account.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if acc, ok := repo.db.table[username]; ok {
		return *acc, nil
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc account.Account) (account.Account, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[acc.Username]; ok {
		return account.Account{}, account.ErrDuplicateKey
	}
	repo.db.table[acc.Username] = &acc
	repo.db.order = append(repo.db.order, acc.Username)
	return acc, nil
}

func (repo *accountRepository) UpdateTermActual(_ context.Context, username string, t account.Term, value null.Float64) (account.Account, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	acc, ok := repo.db.table[username]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	if acc.IsLocked(t) {
		return account.Account{}, account.ErrTermLocked
	}

	updated := *acc
	switch t {
	case account.Term4:
		updated.Sem4Actual = value
	case account.Term5:
		updated.Sem5Actual = value
		updated.ActualCGPA = value
	default:
		return account.Account{}, errors.Errorf("unknown term %d", t)
	}
	updated.UpdatedAt = time.Now().UTC()
	repo.db.table[username] = &updated
	return updated, nil
}

func (repo *accountRepository) ClearAllTerm5Actual(context.Context) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cleared int
	now := time.Now().UTC()
	for _, acc := range repo.db.table {
		if !acc.Sem5Actual.Valid && !acc.ActualCGPA.Valid {
			continue
		}
		acc.Sem5Actual = null.Float64{}
		acc.ActualCGPA = null.Float64{}
		acc.UpdatedAt = now
		cleared++
	}
	return cleared, nil
}

func (repo *accountRepository) ListAll(context.Context) ([]account.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	accounts := make([]account.Account, 0, len(repo.db.order))
	for _, uname := range repo.db.order {
		accounts = append(accounts, *repo.db.table[uname])
	}
	return accounts, nil
}
