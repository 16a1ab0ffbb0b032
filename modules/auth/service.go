package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/GoCodeAlone/apphost"
)

// Event types emitted to the application's observers.
const (
	EventTypeTokenIssued = "com.apphost.auth.token.issued" // #nosec G101 - not a credential
	EventTypeAuthFailed  = "com.apphost.auth.failed"
)

const eventSource = "apphost.auth"

// Service issues and checks credentials.
type Service struct {
	options *Options
	secret  []byte
	keys    APIKeyStore
	events  apphost.Subject
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a Service. events may be nil.
func NewService(options *Options, keys APIKeyStore, events apphost.Subject, logger *slog.Logger) *Service {
	return &Service{
		options: options,
		secret:  []byte(options.JWT.Secret),
		keys:    keys,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

// Authenticate resolves the caller of r from a bearer token or an API key.
func (s *Service) Authenticate(r *http.Request) (*Principal, error) {
	ctx := r.Context()
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return nil, ErrInvalidCredentials
		}
		claims, err := s.ValidateToken(ctx, strings.TrimSpace(token))
		if err != nil {
			return nil, err
		}
		return &Principal{
			Subject:   claims.Subject,
			Email:     claims.Email,
			Roles:     claims.Roles,
			Method:    MethodJWT,
			ExpiresAt: claims.ExpiresAt.Time,
		}, nil
	}

	if key := strings.TrimSpace(r.Header.Get(s.options.APIKeyHeader)); key != "" {
		info, err := s.keys.Lookup(ctx, key)
		if err != nil {
			s.emit(ctx, EventTypeAuthFailed, map[string]any{"reason": "invalid", "method": MethodAPIKey})
			return nil, err
		}
		if !info.ExpiresAt.IsZero() && s.now().After(info.ExpiresAt) {
			s.emit(ctx, EventTypeAuthFailed, map[string]any{"reason": "expired", "method": MethodAPIKey, "keyId": info.ID})
			return nil, ErrAPIKeyExpired
		}
		return &Principal{
			Subject:   info.Subject,
			Roles:     info.Roles,
			Method:    MethodAPIKey,
			APIKeyID:  info.ID,
			ExpiresAt: info.ExpiresAt,
		}, nil
	}
	return nil, ErrNoCredentials
}

// Middleware rejects unauthenticated requests with 401 and stores the Principal in the
// request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.Authenticate(r)
		if err != nil {
			s.logger.Debug("Request not authenticated", "path", r.URL.Path, "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="`+s.options.JWT.Issuer+`"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireRole answers 403 unless the authenticated principal holds role. It must run
// after Middleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := PrincipalFrom(r.Context()); !ok || !p.HasRole(role) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Service) emit(ctx context.Context, eventType string, data map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.NotifyObservers(ctx, apphost.NewCloudEvent(eventType, eventSource, data, nil)); err != nil {
		s.logger.Debug("Failed to notify observers", "event", eventType, "error", err)
	}
}
