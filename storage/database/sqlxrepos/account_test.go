package sqlxrepos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgpaboard/cgpaboard/core"
	"github.com/cgpaboard/cgpaboard/core/account"
	testutil "github.com/cgpaboard/cgpaboard/tests"
)

func TestAccountRepository(t *testing.T) {
	testutil.RunAccountRepositoryTests(t, func(t *testing.T) account.Repository {
		return NewAccountRepository(testutil.OpenDB(t))
	})
}

func TestAccountRepository_unavailable(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewAccountRepository(db)
	require.NoError(t, db.Close())

	_, err := repo.FindByUsername(context.Background(), "divij")
	assert.True(t, core.IsUnavailable(err), "want an unavailable error, got %v", err)
	_, err = repo.ListAll(context.Background())
	assert.True(t, core.IsUnavailable(err))
}

func TestAccountRepository_boil(t *testing.T) {
	var repo accountRepository
	acc := testutil.NewAccount("drip queen", testutil.WithGuess(8.5), testutil.WithSem4(8.2, testutil.Float(8.4)), testutil.WithAdmin())

	row := repo.boil(acc)
	assert.Equal(t, "locked", row.Sem4State)
	assert.Equal(t, "open", row.Sem5State)
	assert.Equal(t, acc, repo.unboil(row))
}
