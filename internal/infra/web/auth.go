package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"edu-subscription-payments/internal/infra/logging"
)

// Session issuance lives in the auth service; this package only validates
// bearer tokens and extracts the authenticated user identity the payment
// core needs: the user id and the mobile number sent to the gateway.

type UserClaims struct {
	Mobile string `json:"mobile"`
	jwt.RegisteredClaims
}

type AuthManager struct {
	secret []byte
}

func NewAuthManager(secret string) *AuthManager {
	return &AuthManager{secret: []byte(secret)}
}

// Mint issues a token for the given user. Used by tests and local tooling;
// production tokens come from the auth service sharing the same secret.
func (a *AuthManager) Mint(userID, mobile string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := UserClaims{
		Mobile: mobile,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

type ctxKey string

const (
	ctxUserID ctxKey = "auth_user_id"
	ctxMobile ctxKey = "auth_mobile"
)

// Middleware validates the Authorization bearer token and stores the user
// identity in the request context.
func (a *AuthManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		claims := &UserClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, claims.Subject)
		ctx = context.WithValue(ctx, ctxMobile, claims.Mobile)
		ctx = logging.WithUserID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (userID, mobile string) {
	if v := ctx.Value(ctxUserID); v != nil {
		userID = v.(string)
	}
	if v := ctx.Value(ctxMobile); v != nil {
		mobile = v.(string)
	}
	return userID, mobile
}
