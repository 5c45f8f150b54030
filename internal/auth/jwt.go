package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionTTL = 7 * 24 * time.Hour

// Session is what a verified token grants: a user plus the tenants the user
// belonged to at sign time, keyed by slug with the membership role as value.
// The tenant resolver trusts this map instead of re-reading memberships on
// every request; a revoked membership therefore survives at most until the
// token expires.
type Session struct {
	UserID  uint64
	Tenants map[string]string
}

type sessionClaims struct {
	Tenants map[string]string `json:"tenants,omitempty"`
	jwt.RegisteredClaims
}

type JWT struct {
	secret []byte
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret)}
}

// Sign issues an HS256 token for the user embedding their tenant
// memberships (slug -> role).
func (j *JWT) Sign(userID uint64, tenants map[string]string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Tenants: tenants,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(j.secret)
}

func (j *JWT) Verify(tokenStr string) (Session, error) {
	var claims sessionClaims
	t, err := jwt.ParseWithClaims(tokenStr, &claims,
		func(token *jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil || !t.Valid {
		return Session{}, errors.New("invalid token")
	}

	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return Session{}, errors.New("invalid subject")
	}
	return Session{UserID: uid, Tenants: claims.Tenants}, nil
}
