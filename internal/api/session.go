/**
 * @description
 * Session resolution for the back-office API. A session is an identity claim, not proof of
 * authority: PIN-gated operations re-authenticate the acting user regardless of what the
 * session says.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: HS256 bearer token validation.
 */

package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
)

const (
	HeaderAuthorization  = "Authorization"
	HeaderInternalAPIKey = "X-Internal-API-Key"
	HeaderUserID         = "X-User-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderLocationID     = "X-Location-ID"
	HeaderPrivilegedPIN  = "X-Privileged-PIN"
)

// SessionContextKey is a custom type for the context key to avoid collisions.
type SessionContextKey string

const sessionKey SessionContextKey = "session"

var errInvalidToken = errors.New("invalid session token")

// SessionResolver turns request credentials into a domain.Session.
type SessionResolver struct {
	secret         []byte
	internalAPIKey string
	logger         *zap.Logger
}

func NewSessionResolver(jwtSecret, internalAPIKey string, logger *zap.Logger) *SessionResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionResolver{
		secret:         []byte(jwtSecret),
		internalAPIKey: internalAPIKey,
		logger:         logger.With(zap.String("component", "session")),
	}
}

// Middleware attaches the resolved session to the request context. Requests without any
// credentials pass through anonymously and are rejected by the service where a session is
// required. A bearer token that fails validation is rejected here.
func (s *SessionResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.Resolve(r)
		if err != nil {
			s.logger.Debug("rejected session credentials", zap.Error(err), zap.String("path", r.URL.Path))
			writeResult(w, http.StatusUnauthorized, failure(domain.ErrKindUnauthenticated, err.Error()))
			return
		}
		if session != nil {
			r = r.WithContext(WithSession(r.Context(), session))
		}
		next.ServeHTTP(w, r)
	})
}

// Resolve returns the session carried by r, nil when the request is anonymous.
func (s *SessionResolver) Resolve(r *http.Request) (*domain.Session, error) {
	if authHeader := r.Header.Get(HeaderAuthorization); authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return nil, errInvalidToken
		}
		return s.parseToken(tokenString)
	}

	apiKey := r.Header.Get(HeaderInternalAPIKey)
	if apiKey == "" || s.internalAPIKey == "" {
		return nil, nil
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.internalAPIKey)) != 1 {
		return nil, errors.New("invalid internal api key")
	}
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return nil, nil
	}
	role, _ := domain.ParseRole(r.Header.Get(HeaderUserRole))
	return &domain.Session{
		UserID:     userID,
		Role:       role,
		LocationID: strings.TrimSpace(r.Header.Get(HeaderLocationID)),
	}, nil
}

func (s *SessionResolver) parseToken(tokenString string) (*domain.Session, error) {
	if len(s.secret) == 0 {
		return nil, errInvalidToken
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	userID, _ := claims["sub"].(string)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errInvalidToken
	}
	rawRole, _ := claims["role"].(string)
	role, _ := domain.ParseRole(rawRole)
	locationID, _ := claims["location_id"].(string)

	return &domain.Session{UserID: userID, Role: role, LocationID: strings.TrimSpace(locationID)}, nil
}

// WithSession returns a copy of ctx carrying session.
func WithSession(ctx context.Context, session *domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext retrieves the session attached by Middleware, nil when anonymous.
func SessionFromContext(ctx context.Context) *domain.Session {
	session, _ := ctx.Value(sessionKey).(*domain.Session)
	return session
}
