package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is unexported so no other package can read or shadow the subject.
type contextKey string

const subjectKey contextKey = "subject"

var errMissingToken = errors.New("auth: missing bearer token")

// RequireAuth rejects requests without a valid "Authorization: Bearer <jwt>"
// header with 401 and stores the token subject in the request context.
//
// WHY A HEADER AND NOT A COOKIE?
// The callers are scripts and CI jobs, not browsers. They hold the token in
// an environment variable and send it on every call:
//
//	curl -H "Authorization: Bearer $TOKEN" -d @batch.json .../api/execute
//
// Nothing is stored server side, so there is no session to expire or revoke;
// a token stops working when its exp claim passes or the secret is rotated.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := extractSubject(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="fargate-executor"`)
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid bearer token required"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

// WithSubject returns a copy of ctx carrying subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFromContext returns the authenticated subject, or ("", false) when
// the request is anonymous (auth disabled).
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey).(string)
	return s, ok && s != ""
}

func extractSubject(r *http.Request, tokens *TokenService) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errMissingToken
	}
	return tokens.Validate(strings.TrimSpace(token))
}
