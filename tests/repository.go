package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/cgpaboard/cgpaboard/core/account"
)

// RunAccountRepositoryTests checks the behaviour every account.Repository must share.
// newRepo must return an empty repository.
func RunAccountRepositoryTests(t *testing.T, newRepo func(t *testing.T) account.Repository) {
	ctx := context.Background()
	base := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

	t.Run("FindByUsername", func(t *testing.T) {
		repo := newRepo(t)
		acc := CreateAccount(t, repo, "divij", WithGuess(9.38), WithCreatedAt(base))

		got, err := repo.FindByUsername(ctx, "divij")
		require.NoError(t, err)
		assert.Equal(t, acc, got)

		_, err = repo.FindByUsername(ctx, "Divij")
		assert.Equal(t, account.ErrNotFound, errors.Cause(err), "usernames are stored lowercased")
		_, err = repo.FindByUsername(ctx, "ghost")
		assert.Equal(t, account.ErrNotFound, errors.Cause(err))
	})

	t.Run("CreateAccount duplicate", func(t *testing.T) {
		repo := newRepo(t)
		first := CreateAccount(t, repo, "akshar", WithGuess(9.21))

		dup := first
		dup.ID = "00000000-0000-0000-0000-000000000001"
		dup.GuessedCGPA = 1
		_, err := repo.CreateAccount(ctx, dup)
		assert.Equal(t, account.ErrDuplicateKey, errors.Cause(err))

		got, err := repo.FindByUsername(ctx, "akshar")
		require.NoError(t, err)
		assert.Equal(t, first, got)
	})

	t.Run("CreateAccount concurrent", func(t *testing.T) {
		repo := newRepo(t)
		const n = 10
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
			dups    int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.CreateAccount(ctx, NewAccount("tushar"))
				mu.Lock()
				defer mu.Unlock()
				switch errors.Cause(err) {
				case nil:
					created++
				case account.ErrDuplicateKey:
					dups++
				default:
					t.Errorf("CreateAccount() unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)
		assert.Equal(t, n-1, dups)
	})

	t.Run("UpdateTermActual", func(t *testing.T) {
		repo := newRepo(t)
		CreateAccount(t, repo, "piyush", WithGuess(8.54), WithSem4(8.1, Float(8.2)))

		acc, err := repo.UpdateTermActual(ctx, "piyush", account.Term5, null.Float64From(8.61))
		require.NoError(t, err)
		assert.Equal(t, null.Float64From(8.61), acc.Sem5Actual)
		assert.Equal(t, null.Float64From(8.61), acc.ActualCGPA)
		assert.Equal(t, null.Float64From(8.2), acc.Sem4Actual)

		stored, err := repo.FindByUsername(ctx, "piyush")
		require.NoError(t, err)
		assert.Equal(t, acc, stored)

		acc, err = repo.UpdateTermActual(ctx, "piyush", account.Term5, null.Float64{})
		require.NoError(t, err)
		assert.False(t, acc.Sem5Actual.Valid)
		assert.False(t, acc.ActualCGPA.Valid)

		_, err = repo.UpdateTermActual(ctx, "piyush", account.Term4, null.Float64From(9))
		assert.Equal(t, account.ErrTermLocked, errors.Cause(err))
		stored, err = repo.FindByUsername(ctx, "piyush")
		require.NoError(t, err)
		assert.Equal(t, null.Float64From(8.2), stored.Sem4Actual, "locked term untouched")

		_, err = repo.UpdateTermActual(ctx, "ghost", account.Term5, null.Float64From(9))
		assert.Equal(t, account.ErrNotFound, errors.Cause(err))
	})

	t.Run("ClearAllTerm5Actual", func(t *testing.T) {
		repo := newRepo(t)
		CreateAccount(t, repo, "purav", WithGuess(8.34), WithActual(8.4), WithSem4(8, Float(8.3)), WithCreatedAt(base))
		CreateAccount(t, repo, "sarthak", WithSem5(7.74, Float(7.5)), WithCreatedAt(base.Add(time.Minute)))
		CreateAccount(t, repo, "singh", WithGuess(7.63), WithCreatedAt(base.Add(2*time.Minute)))

		cleared, err := repo.ClearAllTerm5Actual(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, cleared)

		accounts, err := repo.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, accounts, 3)
		for _, acc := range accounts {
			assert.False(t, acc.Sem5Actual.Valid, acc.Username)
			assert.False(t, acc.ActualCGPA.Valid, acc.Username)
		}
		assert.Equal(t, null.Float64From(8.3), accounts[0].Sem4Actual)
		assert.Equal(t, 8.34, accounts[0].GuessedCGPA)
		assert.Equal(t, 7.74, accounts[1].Sem5Guessed)

		cleared, err = repo.ClearAllTerm5Actual(ctx)
		require.NoError(t, err)
		assert.Zero(t, cleared)
	})

	t.Run("ListAll", func(t *testing.T) {
		repo := newRepo(t)
		accounts, err := repo.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, accounts)

		a := CreateAccount(t, repo, "laksh", WithCreatedAt(base))
		b := CreateAccount(t, repo, "ahuja", WithCreatedAt(base.Add(time.Second)))
		c := CreateAccount(t, repo, "gaurav", WithAdmin(), WithCreatedAt(base.Add(2*time.Second)))

		accounts, err = repo.ListAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []account.Account{a, b, c}, accounts)
	})
}
