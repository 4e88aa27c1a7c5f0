package account_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/cgpaboard/cgpaboard/core"
	"github.com/cgpaboard/cgpaboard/core/account"
	"github.com/cgpaboard/cgpaboard/core/grade"
	emailsvc "github.com/cgpaboard/cgpaboard/services/email"
	inmemdb "github.com/cgpaboard/cgpaboard/storage/database/inmem"
	testutil "github.com/cgpaboard/cgpaboard/tests"
)

// countingCache serves the last loaded listing until invalidated.
type countingCache struct {
	mu          sync.Mutex
	cached      []account.Account
	loads       int
	invalidated int
}

func (c *countingCache) GetOrLoad(ctx context.Context, load func(context.Context) ([]account.Account, error)) ([]account.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil {
		return c.cached, nil
	}
	accounts, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.loads++
	c.cached = accounts
	return accounts, nil
}

func (c *countingCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
	c.invalidated++
	return nil
}

func setup(t *testing.T) (*account.Service, account.Repository, *countingCache) {
	t.Helper()
	conf := testutil.NewConfig()
	repo := inmemdb.NewAccountRepository(inmemdb.Open())
	cache := new(countingCache)
	svc := account.NewService(conf, repo, cache, emailsvc.NewConsoleServiceMock(conf), testutil.NewLogger())
	return svc, repo, cache
}

func isValidationErr(err error) bool {
	_, ok := errors.Cause(err).(*core.ValidationError)
	return ok
}

func TestService_Resolve(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)
	existing := testutil.CreateAccount(t, repo, "piyush", testutil.WithGuess(8.54))

	tests := []struct {
		name     string
		uname    string
		wantErr  bool
		wantRole string
		check    func(t *testing.T, acc account.Account)
	}{
		{name: "blank", uname: "  \t ", wantErr: true},
		{name: "empty", uname: "", wantErr: true},
		{
			name:     "roster admin",
			uname:    "  TUSHAR ",
			wantRole: account.RoleAdmin,
			check: func(t *testing.T, acc account.Account) {
				assert.Equal(t, "tushar", acc.Username)
				assert.Equal(t, 8.74, acc.GuessedCGPA)
				assert.Equal(t, null.Float64From(9.08), acc.ActualCGPA)
				assert.True(t, acc.IsAdmin)
				assert.Equal(t, account.TermLocked, acc.Sem4State)
				assert.Equal(t, account.TermOpen, acc.Sem5State)
				assert.NotEmpty(t, acc.ID)
			},
		},
		{
			name:     "roster user without actual",
			uname:    "akshar",
			wantRole: account.RoleUser,
			check: func(t *testing.T, acc account.Account) {
				assert.Equal(t, 9.21, acc.GuessedCGPA)
				assert.False(t, acc.ActualCGPA.Valid)
				assert.False(t, acc.IsAdmin)
			},
		},
		{
			name:     "roster name with a space",
			uname:    "Drip Queen",
			wantRole: account.RoleUser,
			check: func(t *testing.T, acc account.Account) {
				assert.Equal(t, "drip queen", acc.Username)
				assert.Equal(t, 8.5, acc.GuessedCGPA)
			},
		},
		{
			name:     "unknown user gets a default account",
			uname:    "Stranger",
			wantRole: account.RoleUser,
			check: func(t *testing.T, acc account.Account) {
				assert.Equal(t, "stranger", acc.Username)
				assert.Zero(t, acc.GuessedCGPA)
				assert.False(t, acc.ActualCGPA.Valid)
				assert.False(t, acc.IsAdmin)
			},
		},
		{
			name:     "existing account is returned untouched",
			uname:    "Piyush",
			wantRole: account.RoleUser,
			check: func(t *testing.T, acc account.Account) {
				assert.Equal(t, existing, acc)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ident, acc, err := svc.Resolve(ctx, tt.uname)
			if tt.wantErr {
				assert.True(t, isValidationErr(err), "want *core.ValidationError, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, acc.Username, ident.Name)
			assert.Equal(t, tt.wantRole, ident.Role)
			if tt.check != nil {
				tt.check(t, acc)
			}
		})
	}

	t.Run("second resolve changes nothing", func(t *testing.T) {
		before, err := repo.ListAll(ctx)
		require.NoError(t, err)

		_, _, err = svc.Resolve(ctx, "tushar")
		require.NoError(t, err)
		_, _, err = svc.Resolve(ctx, "stranger")
		require.NoError(t, err)

		after, err := repo.ListAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestService_Resolve_concurrentFirstLogin(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)

	const n = 20
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, acc, err := svc.Resolve(ctx, "Divij")
			ids[i], errs[i] = acc.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i], "every caller sees the same account")
	}
	accounts, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

// racingRepo reports a miss on the first lookup and a duplicate on create, as if another request won the race.
type racingRepo struct {
	account.Repository
	lookups int
}

func (r *racingRepo) FindByUsername(ctx context.Context, uname string) (account.Account, error) {
	r.lookups++
	if r.lookups == 1 {
		return account.Account{}, account.ErrNotFound
	}
	return r.Repository.FindByUsername(ctx, uname)
}

func TestService_Resolve_retriesOnDuplicate(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig()
	inner := inmemdb.NewAccountRepository(inmemdb.Open())
	winner := testutil.CreateAccount(t, inner, "laksh", testutil.WithGuess(9.12))

	repo := &racingRepo{Repository: inner}
	svc := account.NewService(conf, repo, nil, nil, testutil.NewLogger())

	ident, acc, err := svc.Resolve(ctx, "laksh")
	require.NoError(t, err)
	assert.Equal(t, winner, acc)
	assert.Equal(t, account.Identity{Name: "laksh", Role: account.RoleUser}, ident)
	assert.Equal(t, 2, repo.lookups)
}

func TestService_SaveActual(t *testing.T) {
	ctx := context.Background()
	svc, repo, cache := setup(t)
	testutil.CreateAccount(t, repo, "sarthak", testutil.WithGuess(7.74))

	tests := []struct {
		name    string
		uname   string
		term    account.Term
		value   null.Float64
		wantErr error
		check   func(t *testing.T, acc account.Account)
	}{
		{name: "unknown term", uname: "sarthak", term: 6, value: null.Float64From(8)},
		{name: "unknown account", uname: "ghost", term: account.Term5, value: null.Float64From(8), wantErr: account.ErrNotFound},
		{name: "locked term", uname: "sarthak", term: account.Term4, value: null.Float64From(8), wantErr: account.ErrTermLocked},
		{
			name:  "semester 5 writes legacy field too",
			uname: " Sarthak",
			term:  account.Term5,
			value: null.Float64From(8.12),
			check: func(t *testing.T, acc account.Account) {
				assert.Equal(t, null.Float64From(8.12), acc.Sem5Actual)
				assert.Equal(t, null.Float64From(8.12), acc.ActualCGPA)
				assert.False(t, acc.Sem4Actual.Valid)
				assert.Equal(t, 7.74, acc.GuessedCGPA)
			},
		},
		{
			name:  "null clears",
			uname: "sarthak",
			term:  account.Term5,
			check: func(t *testing.T, acc account.Account) {
				assert.False(t, acc.Sem5Actual.Valid)
				assert.False(t, acc.ActualCGPA.Valid)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := repo.FindByUsername(ctx, "sarthak")
			require.NoError(t, err)

			acc, err := svc.SaveActual(ctx, tt.uname, tt.term, tt.value)
			if tt.check == nil {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.Equal(t, tt.wantErr, errors.Cause(err))
				} else {
					assert.True(t, isValidationErr(err))
				}
				after, err := repo.FindByUsername(ctx, "sarthak")
				require.NoError(t, err)
				assert.Equal(t, before, after, "a failed write leaves the account untouched")
				return
			}
			require.NoError(t, err)
			tt.check(t, acc)
		})
	}
	assert.Equal(t, 2, cache.invalidated)
}

func TestService_SubmitSubjects(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)
	testutil.CreateAccount(t, repo, "ahuja", testutil.WithGuess(8.06), testutil.WithActual(7))

	_, _, err := svc.SubmitSubjects(ctx, "ahuja", account.Term5, []grade.Subject{grade.NewSubject(90, 0)})
	assert.True(t, isValidationErr(err))
	acc, err := repo.FindByUsername(ctx, "ahuja")
	require.NoError(t, err)
	assert.Equal(t, null.Float64From(7), acc.ActualCGPA, "nothing written on a rejected computation")

	cgpa, acc, err := svc.SubmitSubjects(ctx, "ahuja", account.Term5, []grade.Subject{grade.NewSubject(90, 4), grade.NewSubject(40, 2)})
	require.NoError(t, err)
	assert.Equal(t, 8.0, cgpa)
	assert.Equal(t, null.Float64From(8), acc.Sem5Actual)

	_, _, err = svc.SubmitSubjects(ctx, "ahuja", account.Term4, []grade.Subject{grade.NewSubject(90, 4)})
	assert.Equal(t, account.ErrTermLocked, errors.Cause(err))
}

func TestService_Leaderboard(t *testing.T) {
	ctx := context.Background()
	svc, repo, cache := setup(t)
	testutil.CreateAccount(t, repo, "gaurav", testutil.WithGuess(9.16), testutil.WithActual(9.3))
	testutil.CreateAccount(t, repo, "singh", testutil.WithGuess(7.63))
	testutil.CreateAccount(t, repo, "purav", testutil.WithGuess(8.34), testutil.WithActual(8.3))

	accounts, err := svc.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, "gaurav", accounts[0].Username)
	assert.Equal(t, "purav", accounts[2].Username)

	_, err = svc.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.loads, "second listing served from cache")

	_, err = svc.SaveActual(ctx, "singh", account.Term5, null.Float64From(7.9))
	require.NoError(t, err)
	rows, err := svc.LeaderboardView(ctx, account.Term5, account.OrderAscending)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.loads, "a write invalidates the listing")
	assert.Equal(t, []account.ViewRow{
		{Username: "singh", Guessed: 7.63, Actual: 7.9, Diff: 0.27},
		{Username: "purav", Guessed: 8.34, Actual: 8.3, Diff: 0.04},
		{Username: "gaurav", Guessed: 9.16, Actual: 9.3, Diff: 0.14},
	}, rows)

	_, err = svc.LeaderboardView(ctx, account.Term(2), account.OrderAscending)
	assert.True(t, isValidationErr(err))
}

func TestService_Reset(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) (*account.Service, account.Repository, *countingCache, account.Account, account.Account) {
		svc, repo, cache := setup(t)
		admin := testutil.CreateAccount(t, repo, "tushar", testutil.WithAdmin(), testutil.WithGuess(8.74), testutil.WithActual(9.08))
		usr := testutil.CreateAccount(t, repo, "divij",
			testutil.WithGuess(9.38), testutil.WithActual(9.4),
			testutil.WithSem5(9.4, testutil.Float(9.5)),
			testutil.WithSem4(9.1, testutil.Float(9.2)),
		)
		testutil.CreateAccount(t, repo, "singh", testutil.WithGuess(7.63))
		return svc, repo, cache, admin, usr
	}

	tests := []struct {
		name    string
		caller  func(admin, usr account.Account) *account.Account
		secret  string
		wantErr error
	}{
		{name: "no caller", caller: func(_, _ account.Account) *account.Account { return nil }, secret: testutil.AdminSecret, wantErr: account.ErrUnauthorized},
		{name: "not admin", caller: func(_, usr account.Account) *account.Account { return &usr }, secret: testutil.AdminSecret, wantErr: account.ErrForbidden},
		{name: "not admin, wrong secret", caller: func(_, usr account.Account) *account.Account { return &usr }, secret: "nope", wantErr: account.ErrForbidden},
		{name: "wrong secret", caller: func(admin, _ account.Account) *account.Account { return &admin }, secret: "nope", wantErr: account.ErrInvalidSecret},
		{name: "empty secret", caller: func(admin, _ account.Account) *account.Account { return &admin }, secret: "", wantErr: account.ErrInvalidSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, admin, usr := seed(t)
			before, err := repo.ListAll(ctx)
			require.NoError(t, err)

			_, err = svc.Reset(ctx, tt.caller(admin, usr), tt.secret)
			assert.Equal(t, tt.wantErr, err)

			after, err := repo.ListAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after, "a refused reset changes nothing")
		})
	}

	t.Run("admin with secret", func(t *testing.T) {
		emailsvc.ResetSentMessages()
		svc, repo, cache, admin, _ := seed(t)
		before, err := repo.ListAll(ctx)
		require.NoError(t, err)

		res, err := svc.Reset(ctx, &admin, testutil.AdminSecret)
		require.NoError(t, err)
		assert.Equal(t, 2, res.ClearedCount)
		assert.Equal(t, 1, cache.invalidated)

		after, err := repo.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, after, len(before))
		for i := range after {
			b, a := before[i], after[i]
			assert.False(t, a.Sem5Actual.Valid)
			assert.False(t, a.ActualCGPA.Valid)
			assert.Equal(t, b.Sem4Actual, a.Sem4Actual, "semester 4 untouched")
			assert.Equal(t, b.Sem4Guessed, a.Sem4Guessed)
			assert.Equal(t, b.Sem4State, a.Sem4State)
			assert.Equal(t, b.GuessedCGPA, a.GuessedCGPA)
			assert.Equal(t, b.Sem5Guessed, a.Sem5Guessed)
			assert.Equal(t, b.IsAdmin, a.IsAdmin)
		}

		rows, err := svc.LeaderboardView(ctx, account.Term5, account.OrderDescending)
		require.NoError(t, err)
		assert.Empty(t, rows)
		rows, err = svc.LeaderboardView(ctx, account.Term4, account.OrderDescending)
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		sent := emailsvc.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "ops@cgpaboard.test", sent[0].To[0].Address)
		assert.Contains(t, sent[0].Body, "tushar cleared the semester 5 actual CGPA of 2 accounts")
	})

	t.Run("reset twice", func(t *testing.T) {
		svc, _, _, admin, _ := seed(t)
		_, err := svc.Reset(ctx, &admin, testutil.AdminSecret)
		require.NoError(t, err)
		res, err := svc.Reset(ctx, &admin, testutil.AdminSecret)
		require.NoError(t, err)
		assert.Zero(t, res.ClearedCount)
	})
}

func TestService_SaveActual_clearHidesSeededActual(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	_, acc, err := svc.Resolve(ctx, "tushar")
	require.NoError(t, err)
	require.Equal(t, null.Float64From(9.08), acc.ActualCGPA, "seeded from the roster")

	_, err = svc.SaveActual(ctx, "tushar", account.Term5, null.Float64From(9.2))
	require.NoError(t, err)
	acc, err = svc.SaveActual(ctx, "tushar", account.Term5, null.Float64{})
	require.NoError(t, err)
	assert.False(t, acc.ActualCGPA.Valid)

	rows, err := svc.LeaderboardView(ctx, account.Term5, account.OrderDescending)
	require.NoError(t, err)
	assert.Empty(t, rows, "a cleared value does not fall back to the seeded one")
}
