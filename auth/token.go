package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tcriess/lightspeed-tabletop/config"
	"github.com/tcriess/lightspeed-tabletop/types"
)

// WSClaims are the claims of the short-lived, single-session-scoped token
// exchanged for a websocket connection.
type WSClaims struct {
	SessionId string `json:"session_id"`
	Nick      string `json:"nick"`
	AvatarUrl string `json:"avatar_url,omitempty"`
	jwt.RegisteredClaims
}

// IssueWSToken mints a websocket token for one user and one session. The TTL
// only needs to cover the gap between the REST call and the connection open.
func IssueWSToken(cfg *config.Config, sessionId string, user *types.User) (string, error) {
	if cfg.AuthConfig.JWTSecret == "" {
		return "", fmt.Errorf("no jwt secret configured")
	}
	now := time.Now()
	claims := WSClaims{
		SessionId: sessionId,
		Nick:      user.Nick,
		AvatarUrl: user.AvatarUrl,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL())),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.AuthConfig.JWTSecret))
}

// VerifyWSToken validates signature, expiry and the session scope and
// returns the connecting user. Any failure here is an AuthFailure: the
// connection is refused before registration.
func VerifyWSToken(cfg *config.Config, sessionId, tokenString string) (*types.User, error) {
	claims := WSClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.AuthConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.SessionId != sessionId {
		return nil, fmt.Errorf("token is scoped to a different session")
	}
	return &types.User{
		Id:        claims.Subject,
		Nick:      claims.Nick,
		AvatarUrl: claims.AvatarUrl,
	}, nil
}
