package api

import (
	"errors"
	"net/http"
	"time"

	"vanish/internal/server/database"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	cookieName   = "token"
	sessionTTL   = 24 * time.Hour
	ctxUserIDKey = "userID"
	ctxRoleKey   = "userRole"
)

// sessionClaims is the JWT payload carried in the session cookie.
type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth mints and verifies session cookies.
type Auth struct {
	secret []byte
	secure bool
}

// NewAuth creates the session helper. secure controls the cookie Secure flag.
func NewAuth(secret []byte, secure bool) *Auth {
	return &Auth{secret: secret, secure: secure}
}

func (a *Auth) signToken(user *database.User) (string, error) {
	now := time.Now()
	claims := &sessionClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) parseToken(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}

// SetSession issues the HttpOnly session cookie for a logged-in user.
func (a *Auth) SetSession(c echo.Context, user *database.User) error {
	token, err := a.signToken(user)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// ClearSession expires the session cookie.
func (a *Auth) ClearSession(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Required rejects requests without a valid session cookie and stores the
// caller identity in the request context.
func (a *Auth) Required() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			claims, err := a.parseToken(cookie.Value)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired session"})
			}
			c.Set(ctxUserIDKey, claims.Subject)
			c.Set(ctxRoleKey, claims.Role)
			return next(c)
		}
	}
}

// AdminOnly gates a route to admin sessions. Must run after Required.
func AdminOnly() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if role, _ := c.Get(ctxRoleKey).(string); role != database.RoleAdmin {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "admin access required"})
			}
			return next(c)
		}
	}
}

// callerID returns the authenticated user ID from the request context.
func callerID(c echo.Context) string {
	id, _ := c.Get(ctxUserIDKey).(string)
	return id
}
