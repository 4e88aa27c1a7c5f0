package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/cgpaboard/cgpaboard/core"
	"github.com/cgpaboard/cgpaboard/core/account"
)

const (
	contextTokenKey   = "accountToken"
	contextAccountKey = "account"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

type authenticator struct {
	jwtConfig middleware.JWTConfig
	issuer    string
	ttl       time.Duration
}

func newAuthenticator(conf *core.Config) *authenticator {
	return &authenticator{
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
		issuer: conf.AppName,
		ttl:    conf.JWTExpirationDelta,
	}
}

func (a *authenticator) claims(acc account.Account) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.issuer,
			Subject:   acc.ID,
			ExpiresAt: now.Add(a.ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: acc.Username,
		Role:     acc.Role(),
		IsAdmin:  acc.IsAdmin,
	}
}

// token generates a signed JWT token string representing the account Claims.
func (a *authenticator) token(acc account.Account) (string, error) {
	method := jwt.GetSigningMethod(a.jwtConfig.SigningMethod)
	token := jwt.NewWithClaims(method, a.claims(acc))

	ss, err := token.SignedString(a.jwtConfig.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// GenerateToken issues a session token for an account.
func GenerateToken(conf *core.Config, acc account.Account) (string, error) {
	return newAuthenticator(conf).token(acc)
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, account.ErrUnauthorized
}

// getContextAccount loads the account behind the session, once per request.
// A token whose account no longer exists is treated as no session.
func getContextAccount(ctx echo.Context, svc account.ServiceInterface) (account.Account, error) {
	if acc, ok := ctx.Get(contextAccountKey).(account.Account); ok {
		return acc, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return account.Account{}, err
	}

	acc, err := svc.GetByUsername(ctx.Request().Context(), claims.Username)
	if err != nil {
		if errors.Cause(err) == account.ErrNotFound {
			return account.Account{}, account.ErrUnauthorized
		}
		return account.Account{}, errors.Wrap(err, "finding account by username")
	}
	ctx.Set(contextAccountKey, acc)
	return acc, nil
}
