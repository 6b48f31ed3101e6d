package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/rl1809/storefront/internal/core/domain"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Claims carry the user id in the standard sub claim.
type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks an HS256 token and returns the caller it identifies.
func (v *Verifier) Verify(tokenStr string) (domain.Requester, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Requester{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid || claims.Subject == "" {
		return domain.Requester{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	return domain.Requester{UserID: claims.Subject, IsAdmin: claims.Admin}, nil
}

// VerifyHeader accepts an Authorization header value of the form "Bearer <token>".
func (v *Verifier) VerifyHeader(header string) (domain.Requester, error) {
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		return domain.Requester{}, fmt.Errorf("%w: bearer token required", ErrUnauthenticated)
	}
	return v.Verify(tokenStr)
}

// Middleware rejects requests without a valid bearer token and stores the
// caller on the request context.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requester, err := v.VerifyHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Request = c.Request.WithContext(WithRequester(c.Request.Context(), requester))
		c.Next()
	}
}

// IssueToken signs a token for userID. The service never issues tokens itself;
// this is used by clients and tests.
func IssueToken(secret, userID string, admin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type requesterKey struct{}

func WithRequester(ctx context.Context, r domain.Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, r)
}

func RequesterFrom(ctx context.Context) (domain.Requester, bool) {
	r, ok := ctx.Value(requesterKey{}).(domain.Requester)
	return r, ok
}
