package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/session"
	"github.com/trezcool/escola/core/user"
)

var (
	nowFunc = time.Now // mockable

	contextUserKey      = "user"
	contextSessionKey   = "session"
	contextSessionIDKey = "sessionID"
)

// Claims represents the authorization claims transmitted via a JWT.
// StandardClaims.Id is the ID of the server session behind the token.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	SchoolID     string `json:"school_id,omitempty"`
}

type authenticator struct {
	conf      *core.Config
	sessions  *session.Registry
	usrSvc    *user.Service
	jwtConfig middleware.JWTConfig
}

func (a *authenticator) userClaims(usr user.User, sessionID string, origIat ...int64) *Claims {
	now := nowFunc()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        sessionID,
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			Audience:  "Escola Admin",
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		Role:         usr.Role,
		SchoolID:     usr.SchoolID.String,
	}
}

// generateToken generates a signed JWT token string representing the user Claims.
func (a *authenticator) generateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.jwtConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.jwtConfig.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// sessionMiddleware loads the session named by the token claims and its signed-in user into the context.
// It must run after the JWT middleware.
func (a *authenticator) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := a.contextClaims(ctx)
		if err != nil {
			return err
		}
		sess, ok := a.sessions.Get(claims.Id)
		if !ok {
			return errSessionExpired
		}
		usr, ok := sess.Identity()
		if !ok || usr.ID != claims.Subject {
			return errSessionExpired
		}
		a.sessions.Touch(claims.Id)

		ctx.Set(contextSessionIDKey, claims.Id)
		ctx.Set(contextSessionKey, sess)
		ctx.Set(contextUserKey, usr)
		return next(ctx)
	}
}

func (a *authenticator) contextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(a.jwtConfig.ContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

func getContextSession(ctx echo.Context) (string, *session.Session, error) {
	id, _ := ctx.Get(contextSessionIDKey).(string)
	if sess, ok := ctx.Get(contextSessionKey).(*session.Session); ok && id != "" {
		return id, sess, nil
	}
	return "", nil, errUnauthorized
}

// refreshToken issues a new token for the context session, until the refresh delta since the original login.
func (a *authenticator) refreshToken(ctx echo.Context) (string, error) {
	claims, err := a.contextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}
	sessID, sess, err := getContextSession(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context session")
	}

	// check if user is still active
	usr, err := a.usrSvc.LookupIdentityByID(ctx.Request().Context(), claims.Subject)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return "", errors.Wrap(err, "getting context user")
	}
	if err != nil || !usr.Active {
		sess.SignOut(ctx.Request().Context())
		a.sessions.Delete(sessID)
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if nowFunc().After(expTime) {
		return "", errRefreshExpired
	}

	sess.SetIdentity(usr)
	token, err := a.generateToken(a.userClaims(usr, sessID, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}
