package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tacticallink/internal/server/auth"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// requireToken rejects requests without a valid bearer token. A missing or
// expired token is answered with 401, an unparsable one with 422.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken, ok := bearerToken(r)
		if !ok {
			respondAuthError(w, http.StatusUnauthorized, "Missing Authorization Header")
			return
		}

		userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret, s.clk.Now())
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			respondAuthError(w, http.StatusUnauthorized, "Token has expired")
			return
		case err != nil:
			s.logger.Debug(r.Context(), "token rejected", "error", err)
			respondAuthError(w, http.StatusUnprocessableEntity, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
