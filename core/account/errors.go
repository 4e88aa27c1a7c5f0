package account

import "github.com/pkg/errors"

var (
	ErrNotFound      = errors.New("account not found")
	ErrDuplicateKey  = errors.New("an account with this username already exists")
	ErrTermLocked    = errors.New("this semester is locked")
	ErrUnauthorized  = errors.New("authentication required")
	ErrForbidden     = errors.New("admin access required")
	ErrInvalidSecret = errors.New("invalid admin password")
)
