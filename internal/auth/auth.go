package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"AquaWallet/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "userID"

// Claims are the resident tokens issued by the account service. The user id
// travels in the "id" claim.
type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// Verifier resolves a bearer token to a user id.
type Verifier interface {
	Verify(token string) (string, error)
}

type HMACVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (v *HMACVerifier) Verify(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: missing token", model.ErrAuthenticationFailed)
	}
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrAuthenticationFailed, err)
	}
	if !token.Valid || claims.ID == "" {
		return "", fmt.Errorf("%w: token carries no user", model.ErrAuthenticationFailed)
	}
	return claims.ID, nil
}

// Sign issues a token for userID. Used by tooling and tests.
func Sign(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// TokenFromRequest reads "Authorization: Bearer <token>" and falls back to
// the token query parameter, which browsers need for websocket handshakes.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// Middleware rejects requests without a valid token. onFail writes the
// rejection so handlers keep a single error envelope.
func Middleware(v Verifier, onFail func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := v.Verify(TokenFromRequest(r))
			if err != nil {
				if !errors.Is(err, model.ErrAuthenticationFailed) {
					err = fmt.Errorf("%w: %v", model.ErrAuthenticationFailed, err)
				}
				onFail(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// InternalKey guards service-to-service routes with a shared key.
func InternalKey(key string, onFail func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Internal-API-Key")), []byte(key)) != 1 {
				onFail(w, fmt.Errorf("%w: invalid internal api key", model.ErrAuthenticationFailed))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
