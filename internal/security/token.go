package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified subject of an access token.
type Identity struct {
	UserID   int64
	Username string
}

// TokenService wraps JWT creation and validation.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

// Issue creates a signed token for the user using the default TTL.
func (t *TokenService) Issue(userID int64, username string) (string, error) {
	return t.IssueWithTTL(userID, username, t.expiresIn)
}

// IssueWithTTL creates a signed token with an explicit TTL.
func (t *TokenService) IssueWithTTL(userID int64, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"uid": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify validates a token and returns the identity it was issued for.
func (t *TokenService) Verify(tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	uidStr, _ := claims["uid"].(string)
	uid, err := strconv.ParseInt(uidStr, 10, 64)
	if sub == "" || err != nil || uid <= 0 {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: uid, Username: sub}, nil
}
