package shopapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionClaimsKey = "session_claims"
	sessionSubject   = "shop"
)

var errInvalidSession = errors.New("invalid session")

// sessionClaims is the payload of the unlock cookie.
type sessionClaims struct {
	jwt.RegisteredClaims
}

type sessionManager struct {
	signingKey []byte
	issuer     string
	cookieName string
	ttl        time.Duration
	secure     bool
	pin        []byte
	now        func() time.Time
}

func newSessionManager(cfg Config) *sessionManager {
	return &sessionManager{
		signingKey: []byte(cfg.SessionSigningKey),
		issuer:     cfg.SessionIssuer,
		cookieName: cfg.SessionCookieName,
		ttl:        cfg.SessionTTL,
		secure:     cfg.SecureCookies,
		pin:        []byte(cfg.PIN),
		now:        time.Now,
	}
}

func (manager *sessionManager) pinMatches(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), manager.pin) == 1
}

// issue signs a fresh token and sets it as an HTTP-only cookie.
func (manager *sessionManager) issue(ctx *gin.Context) (time.Time, error) {
	issuedAt := manager.now().UTC()
	expiresAt := issuedAt.Add(manager.ttl)
	claims := sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    manager.issuer,
		Subject:   sessionSubject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(manager.signingKey)
	if err != nil {
		return time.Time{}, err
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(manager.cookieName, signed, int(manager.ttl.Seconds()), "/", "", manager.secure, true)
	return expiresAt, nil
}

func (manager *sessionManager) clear(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(manager.cookieName, "", -1, "/", "", manager.secure, true)
}

func (manager *sessionManager) validate(raw string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return manager.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(manager.issuer),
		jwt.WithSubject(sessionSubject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(manager.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errInvalidSession
	}
	return claims, nil
}

// middleware rejects requests without a valid unlock cookie.
func (manager *sessionManager) middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw, err := ctx.Cookie(manager.cookieName)
		if err != nil || raw == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		claims, err := manager.validate(raw)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session"))
			return
		}
		ctx.Set(sessionClaimsKey, claims)
		ctx.Next()
	}
}
