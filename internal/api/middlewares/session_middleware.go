package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/markdave123-py/askdoc/internal/logger"
	"github.com/markdave123-py/askdoc/internal/services"
)

type contextKey string

const sessionKey contextKey = "session"

var ErrInvalidToken = errors.New("invalid session token")

// SessionTokens issues and verifies HS256 tokens carrying a session_id claim.
type SessionTokens struct {
	secret []byte
	ttl    time.Duration
}

func NewSessionTokens(secret string, ttl time.Duration) *SessionTokens {
	return &SessionTokens{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for sessionID.
func (t *SessionTokens) Issue(sessionID string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(t.ttl)
	claims := jwt.MapClaims{
		"session_id": sessionID,
		"iat":        now.Unix(),
		"exp":        exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, exp, nil
}

// Parse returns the session ID of a valid token.
func (t *SessionTokens) Parse(tokenStr string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sessionID, ok := claims["session_id"].(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("%w: missing session_id claim", ErrInvalidToken)
	}
	return sessionID, nil
}

// SessionLookup resolves a session by ID.
type SessionLookup interface {
	Get(id string) (*services.PipelineSession, error)
}

// SessionMiddleware validates the Authorization header and attaches the
// caller's session to the request context.
func SessionMiddleware(tokens *SessionTokens, sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				unauthorized(w, "missing or invalid token")
				return
			}

			sessionID, err := tokens.Parse(strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				logger.Debug("rejected session token", zap.Error(err))
				unauthorized(w, "invalid token")
				return
			}

			sess, err := sessions.Get(sessionID)
			if err != nil {
				unauthorized(w, "session expired or not found")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

func WithSession(ctx context.Context, s *services.PipelineSession) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func SessionFromContext(ctx context.Context) (*services.PipelineSession, bool) {
	s, ok := ctx.Value(sessionKey).(*services.PipelineSession)
	return s, ok && s != nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": "unauthorized"})
}
