package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/copier"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cgpaboard/cgpaboard/core"
	"github.com/cgpaboard/cgpaboard/core/account"
	"github.com/cgpaboard/cgpaboard/core/grade"
)

var errAccountNotFoundInCtx = errors.New("account not found in echo.Context")

type accountApi struct {
	svc      account.ServiceInterface
	auth     *authenticator
	validate *validator.Validate
}

func registerAccountAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc account.ServiceInterface,
	validate *validator.Validate,
) {
	api := accountApi{
		svc:      svc,
		auth:     auth,
		validate: validate,
	}
	authed := []echo.MiddlewareFunc{jwt, accountMiddleware(svc)}

	// un-authed endpoints
	g.POST("/accounts/login", api.login)
	g.POST("/cgpa/calculate", api.calculate)
	g.GET("/leaderboard", api.leaderboard)
	g.GET("/leaderboard/view", api.leaderboardView)

	// authed endpoints
	g.GET("/accounts/me", api.me, authed...)
	g.POST("/cgpa", api.saveActual, authed...)
	g.DELETE("/cgpa", api.clearActual, authed...)
	g.POST("/cgpa/submit", api.submit, authed...)
	g.POST("/admin/clear-cgpa", api.clearAllTerm5, authed...)
}

func ctxAccount(ctx echo.Context) (account.Account, error) {
	acc, ok := ctx.Get(contextAccountKey).(account.Account)
	if !ok {
		return account.Account{}, errors.Wrap(errAccountNotFoundInCtx, "retrieving account from context")
	}
	return acc, nil
}

// Handlers

func (api *accountApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ident, acc, err := api.svc.Resolve(ctx.Request().Context(), data.Username)
	if err != nil {
		return errors.Wrap(err, "resolving account")
	}
	token, err := api.auth.token(acc)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Identity: ident})
}

func (api *accountApi) me(ctx echo.Context) error {
	acc, err := ctxAccount(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *accountApi) calculate(ctx echo.Context) error {
	var data account.Calculate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Calculate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cgpa, err := grade.ComputeCGPA(data.Subjects)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CalculateResponse{CGPA: cgpa})
}

func (api *accountApi) submit(ctx echo.Context) error {
	acc, err := ctxAccount(ctx)
	if err != nil {
		return err
	}

	var data account.SubmitSubjects
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitSubjects")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cgpa, acc, err := api.svc.SubmitSubjects(ctx.Request().Context(), acc.Username, data.Semester, data.Subjects)
	if err != nil {
		return errors.Wrap(err, "submitting subjects")
	}
	return ctx.JSON(http.StatusOK, SubmitResponse{Success: true, CGPA: cgpa, Account: acc})
}

func (api *accountApi) saveActual(ctx echo.Context) error {
	acc, err := ctxAccount(ctx)
	if err != nil {
		return err
	}

	var data account.SaveActual
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveActual")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	acc, err = api.svc.SaveActual(ctx.Request().Context(), acc.Username, data.Semester, null.Float64FromPtr(data.ActualCGPA))
	if err != nil {
		return errors.Wrap(err, "saving actual CGPA")
	}
	return ctx.JSON(http.StatusOK, AccountResponse{Success: true, Account: acc})
}

func (api *accountApi) clearActual(ctx echo.Context) error {
	acc, err := ctxAccount(ctx)
	if err != nil {
		return err
	}
	t, err := bindTerm(ctx)
	if err != nil {
		return err
	}

	acc, err = api.svc.SaveActual(ctx.Request().Context(), acc.Username, t, null.Float64{})
	if err != nil {
		return errors.Wrap(err, "clearing actual CGPA")
	}
	return ctx.JSON(http.StatusOK, AccountResponse{Success: true, Account: acc})
}

func (api *accountApi) leaderboard(ctx echo.Context) error {
	accounts, err := api.svc.Leaderboard(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing leaderboard")
	}

	entries := make([]LeaderboardEntry, 0, len(accounts))
	if err = copier.Copy(&entries, &accounts); err != nil {
		return errors.Wrap(err, "copying accounts to entries")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *accountApi) leaderboardView(ctx echo.Context) error {
	t, err := bindTerm(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	order, err := ordering.ViewOrder()
	if err != nil {
		return err
	}

	rows, err := api.svc.LeaderboardView(ctx.Request().Context(), t, order)
	if err != nil {
		return errors.Wrap(err, "building leaderboard view")
	}

	resp := make([]ViewRowResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, ViewRowResponse{ViewRow: row, Band: account.Band(row.Diff)})
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *accountApi) clearAllTerm5(ctx echo.Context) error {
	acc, err := ctxAccount(ctx)
	if err != nil {
		return err
	}

	// neither bind errors nor validation here: an unreadable or empty password is a wrong password,
	// and the service checks the caller's role before the password
	var data ResetRequest
	_ = ctx.Bind(&data)

	res, err := api.svc.Reset(ctx.Request().Context(), &acc, data.Password)
	if err != nil {
		return errors.Wrap(err, "clearing semester 5 actuals")
	}
	return ctx.JSON(http.StatusOK, ResetResponse{
		Success:      true,
		Message:      "All semester 5 CGPA data has been cleared",
		ClearedCount: res.ClearedCount,
	})
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"notblank"`
	}

	LoginResponse struct {
		Token string `json:"token"`
		account.Identity
	}

	CalculateResponse struct {
		CGPA float64 `json:"cgpa"`
	}

	AccountResponse struct {
		Success bool            `json:"success"`
		Account account.Account `json:"user"`
	}

	SubmitResponse struct {
		Success bool            `json:"success"`
		CGPA    float64         `json:"cgpa"`
		Account account.Account `json:"user"`
	}

	// LeaderboardEntry is the public projection of an Account.
	LeaderboardEntry struct {
		Username    string       `json:"username"`
		GuessedCGPA float64      `json:"guessedCGPA"`
		ActualCGPA  null.Float64 `json:"actualCGPA"`
		Sem5Guessed float64      `json:"sem5Guessed"`
		Sem5Actual  null.Float64 `json:"sem5Actual"`
		Sem4Guessed float64      `json:"sem4Guessed"`
		Sem4Actual  null.Float64 `json:"sem4Actual"`
		IsAdmin     bool         `json:"isAdmin"`
	}

	ViewRowResponse struct {
		account.ViewRow
		Band string `json:"band"`
	}

	ResetRequest struct {
		Password string `json:"password"`
	}

	ResetResponse struct {
		Success      bool   `json:"success"`
		Message      string `json:"message"`
		ClearedCount int    `json:"clearedCount"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}
