package hub

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/patternkit/patternkit/pkg/connection"
	"github.com/patternkit/patternkit/pkg/constants"
)

// Claims identify a peer allowed to connect.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 peer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for subject. A zero ttl issues a token that
// does not expire.
func (a *Authenticator) Issue(subject string) (string, error) {
	now := a.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  subject,
		Issuer:   a.issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if a.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", constants.ErrUnauthorized, err)
	}
	return claims, nil
}

func bearer(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || token == "" {
			return "", errors.New("malformed authorization header")
		}
		return token, nil
	}
	if token := r.URL.Query().Get(connection.AuthTokenKey); token != "" {
		return token, nil
	}
	return "", errors.New("missing token")
}

// middleware rejects requests without a valid token. A nil authenticator
// lets everything through.
func (a *Authenticator) middleware(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearer(r)
		if err == nil {
			_, err = a.Verify(token)
		}
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
