package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cgpaboard/cgpaboard/core"
	"github.com/cgpaboard/cgpaboard/core/account"
)

var (
	orderingParam = "ordering"
	semesterParam = "semester"

	errBadOrdering = errors.New("ordering must be actual or -actual")
	errBadSemester = errors.New("semester must be 4 or 5")
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// ViewOrder reads the leaderboard ordering. Only the actual value can be sorted on; descending by default.
func (ord *Ordering) ViewOrder() (account.ViewOrder, error) {
	switch len(ord.Orderings) {
	case 0:
		return account.OrderDescending, nil
	case 1:
		if o := ord.Orderings[0]; o.Field == "actual" {
			if o.Ascending {
				return account.OrderAscending, nil
			}
			return account.OrderDescending, nil
		}
	}
	return 0, core.NewValidationError(errBadOrdering, core.FieldError{Field: orderingParam, Error: errBadOrdering.Error()})
}

// bindTerm reads the `semester` query param, semester 5 when absent.
func bindTerm(ctx echo.Context) (account.Term, error) {
	val := ctx.QueryParam(semesterParam)
	if val == "" {
		return account.Term5, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if t := account.Term(n); err == nil && t.Valid() {
		return t, nil
	}
	return 0, core.NewValidationError(errBadSemester, core.FieldError{Field: semesterParam, Error: errBadSemester.Error()})
}
