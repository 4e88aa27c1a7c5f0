package account

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cgpaboard/cgpaboard/core"
	"github.com/cgpaboard/cgpaboard/core/grade"
)

// maxResolveAttempts bounds the lookup/create loop of Resolve when concurrent first logins collide.
const maxResolveAttempts = 3

var errBlankUsername = errors.New("username cannot be blank")

type (
	Repository interface {
		FindByUsername(ctx context.Context, username string) (Account, error)
		// CreateAccount returns ErrDuplicateKey when the username is taken.
		CreateAccount(ctx context.Context, acc Account) (Account, error)
		// UpdateTermActual sets (or clears, with a null value) the actual CGPA of a term in a single write.
		// It fails with ErrTermLocked when the term is locked for that account.
		UpdateTermActual(ctx context.Context, username string, t Term, value null.Float64) (Account, error)
		// ClearAllTerm5Actual nulls the semester 5 actuals (legacy field included) of every account at once.
		ClearAllTerm5Actual(ctx context.Context) (int, error)
		// ListAll returns accounts in creation order.
		ListAll(ctx context.Context) ([]Account, error)
	}

	// LeaderboardCache holds the account listing between writes.
	LeaderboardCache interface {
		GetOrLoad(ctx context.Context, load func(context.Context) ([]Account, error)) ([]Account, error)
		Invalidate(ctx context.Context) error
	}

	ServiceInterface interface {
		Resolve(ctx context.Context, username string) (Identity, Account, error)
		GetByUsername(ctx context.Context, username string) (Account, error)
		SaveActual(ctx context.Context, username string, t Term, value null.Float64) (Account, error)
		SubmitSubjects(ctx context.Context, username string, t Term, subjects []grade.Subject) (float64, Account, error)
		Leaderboard(ctx context.Context) ([]Account, error)
		LeaderboardView(ctx context.Context, t Term, order ViewOrder) ([]ViewRow, error)
		Reset(ctx context.Context, caller *Account, secret string) (ResetResult, error)
	}

	Service struct {
		repo        Repository
		cache       LeaderboardCache
		mailSvc     core.EmailService
		logger      core.Logger
		roster      Roster
		adminSecret []byte
		lockedTerms map[Term]bool
		notifyTo    []mail.Address
		now         func() time.Time
	}

	ResetResult struct {
		ClearedCount int `json:"clearedCount"`
	}
)

var _ ServiceInterface = (*Service)(nil)

// NewService builds the account service. A nil cache disables caching.
func NewService(
	conf *core.Config,
	repo Repository,
	cache LeaderboardCache,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	if cache == nil {
		cache = NoCache{}
	}
	locked := make(map[Term]bool, len(conf.LockedTerms))
	for _, t := range conf.LockedTerms {
		locked[Term(t)] = true
	}
	return &Service{
		repo:        repo,
		cache:       cache,
		mailSvc:     mailSvc,
		logger:      logger,
		roster:      NewRoster(conf.Roster...),
		adminSecret: []byte(conf.AdminSecret),
		lockedTerms: locked,
		notifyTo:    conf.ResetNotifyTo,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Resolve returns the account behind a username, creating it on first use:
// seeded from the roster when the username is listed there, blank otherwise.
func (svc *Service) Resolve(ctx context.Context, username string) (Identity, Account, error) {
	uname := core.CleanString(username, true /* lower */)
	if uname == "" {
		return Identity{}, Account{}, core.NewValidationError(
			errBlankUsername,
			core.FieldError{Field: "username", Error: errBlankUsername.Error()},
		)
	}

	var entry *RosterEntry
	if e, ok := svc.roster.Lookup(uname); ok {
		entry = &e
	}

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		var existing *Account
		acc, err := svc.repo.FindByUsername(ctx, uname)
		switch errors.Cause(err) {
		case nil:
			existing = &acc
		case ErrNotFound:
		default:
			return Identity{}, Account{}, errors.Wrap(err, "finding account by username")
		}

		res, tmpl := planAccount(uname, existing, entry)
		if res == resolvedExisting {
			return tmpl.Identity(), tmpl, nil
		}

		acc, err = svc.repo.CreateAccount(ctx, svc.stamp(tmpl))
		if errors.Cause(err) == ErrDuplicateKey {
			// someone else created it in between: the next lookup finds theirs
			continue
		}
		if err != nil {
			return Identity{}, Account{}, errors.Wrap(err, "creating account")
		}

		svc.invalidate(ctx)
		svc.logger.Info("account provisioned", map[string]interface{}{"username": acc.Username, "source": res.String()})
		return acc.Identity(), acc, nil
	}
	return Identity{}, Account{}, errors.Errorf("resolving %q: gave up after %d attempts", uname, maxResolveAttempts)
}

// stamp fills in what a fresh account gets regardless of how it was planned.
func (svc *Service) stamp(acc Account) Account {
	now := svc.now()
	acc.ID = uuid.NewString()
	acc.Sem4State = svc.initialState(Term4)
	acc.Sem5State = svc.initialState(Term5)
	acc.CreatedAt = now
	acc.UpdatedAt = now
	return acc
}

func (svc *Service) initialState(t Term) TermState {
	if svc.lockedTerms[t] {
		return TermLocked
	}
	return TermOpen
}

func (svc *Service) GetByUsername(ctx context.Context, username string) (Account, error) {
	return svc.repo.FindByUsername(ctx, core.CleanString(username, true /* lower */))
}

// SaveActual records the actual CGPA of a term for its owner. A null value clears it.
func (svc *Service) SaveActual(ctx context.Context, username string, t Term, value null.Float64) (Account, error) {
	if !t.Valid() {
		return Account{}, core.NewValidationError(
			fmt.Errorf("unknown term %d", t),
			core.FieldError{Field: "semester", Error: semesterText},
		)
	}
	acc, err := svc.repo.UpdateTermActual(ctx, core.CleanString(username, true /* lower */), t, value)
	if err != nil {
		return Account{}, errors.Wrapf(err, "updating %s actual", t)
	}
	svc.invalidate(ctx)
	return acc, nil
}

// SubmitSubjects computes a CGPA from the subjects and records it as the term's actual.
// Nothing is written when the computation fails.
func (svc *Service) SubmitSubjects(ctx context.Context, username string, t Term, subjects []grade.Subject) (float64, Account, error) {
	cgpa, err := grade.ComputeCGPA(subjects)
	if err != nil {
		return 0, Account{}, err
	}
	acc, err := svc.SaveActual(ctx, username, t, null.Float64From(cgpa))
	if err != nil {
		return 0, Account{}, err
	}
	return cgpa, acc, nil
}

// Leaderboard lists every account in creation order.
func (svc *Service) Leaderboard(ctx context.Context) ([]Account, error) {
	accounts, err := svc.cache.GetOrLoad(ctx, svc.repo.ListAll)
	if err != nil {
		return nil, errors.Wrap(err, "listing accounts")
	}
	return accounts, nil
}

func (svc *Service) LeaderboardView(ctx context.Context, t Term, order ViewOrder) ([]ViewRow, error) {
	if !t.Valid() {
		return nil, core.NewValidationError(
			fmt.Errorf("unknown term %d", t),
			core.FieldError{Field: "semester", Error: semesterText},
		)
	}
	accounts, err := svc.Leaderboard(ctx)
	if err != nil {
		return nil, err
	}
	return BuildView(accounts, t, order), nil
}

// Reset clears the semester 5 actual CGPA of every account.
// The caller must be an admin and present the admin secret. Semester 4 is left untouched.
func (svc *Service) Reset(ctx context.Context, caller *Account, secret string) (ResetResult, error) {
	if caller == nil {
		return ResetResult{}, ErrUnauthorized
	}
	if !caller.IsAdmin {
		return ResetResult{}, ErrForbidden
	}
	if subtle.ConstantTimeCompare([]byte(secret), svc.adminSecret) != 1 {
		svc.logger.Warn("admin reset refused: wrong secret", *caller)
		return ResetResult{}, ErrInvalidSecret
	}

	cleared, err := svc.repo.ClearAllTerm5Actual(ctx)
	if err != nil {
		return ResetResult{}, errors.Wrap(err, "clearing semester 5 actuals")
	}
	svc.invalidate(ctx)

	svc.logger.Warn("semester 5 actuals cleared", map[string]interface{}{"clearedCount": cleared}, *caller)
	svc.notifyReset(*caller, cleared)
	return ResetResult{ClearedCount: cleared}, nil
}

func (svc *Service) notifyReset(caller Account, cleared int) {
	if svc.mailSvc == nil || len(svc.notifyTo) == 0 {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      svc.notifyTo,
		Subject: "Semester 5 CGPAs cleared",
		Body: fmt.Sprintf(
			"%s cleared the semester 5 actual CGPA of %d accounts at %s.\n",
			caller.Username, cleared, svc.now().Format(time.RFC1123),
		),
	})
}

// invalidate drops the cached listing. A failure only delays freshness until the entry expires.
func (svc *Service) invalidate(ctx context.Context) {
	if err := svc.cache.Invalidate(ctx); err != nil {
		svc.logger.Error("invalidating leaderboard cache", err)
	}
}

// NoCache loads on every call.
type NoCache struct{}

func (NoCache) GetOrLoad(ctx context.Context, load func(context.Context) ([]Account, error)) ([]Account, error) {
	return load(ctx)
}

func (NoCache) Invalidate(context.Context) error { return nil }
