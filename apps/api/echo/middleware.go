package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cgpaboard/cgpaboard/core/account"
)

// accountMiddleware puts the session's account in the context; it must run after the JWT middleware.
func accountMiddleware(svc account.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextAccount(ctx, svc); err != nil {
				return errors.Wrap(err, "getting context account")
			}
			return next(ctx)
		}
	}
}
