package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const subjectContextKey = contextKey("subject")

// Claims represents the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs a token for subject that expires after ttl.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is empty")
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "newsbrief",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// requireAuthHandler applies auth check to a specific handler. It is a
// no-op when the server has no secret.
func (s *Server) requireAuthHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.jwtSecret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		// 1. Check Authorization header (Bearer <token>)
		var tokenString string
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		// 2. Fallback to the cookie set by /login, used by the dashboard form
		if tokenString == "" {
			if cookie, err := r.Cookie("token"); err == nil {
				tokenString = cookie.Value
			}
		}

		if tokenString == "" {
			respondError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		claims, err := s.parseToken(tokenString)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid authentication token")
			return
		}

		ctx := context.WithValue(r.Context(), subjectContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) parseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

// handleLogin stores a token from `newsbrief token` in the cookie the
// dashboard form sends: GET /login?token=<jwt>.
func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(s.jwtSecret) == 0 {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		tokenString := r.URL.Query().Get("token")
		claims, err := s.parseToken(tokenString)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid authentication token")
			return
		}

		cookie := &http.Cookie{
			Name:     "token",
			Value:    tokenString,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		}
		if claims.ExpiresAt != nil {
			cookie.Expires = claims.ExpiresAt.Time
		}
		http.SetCookie(w, cookie)
		s.logger.Info("dashboard login", "subject", claims.Subject)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// getSubject extracts the token subject from the request context.
func getSubject(r *http.Request) string {
	if val, ok := r.Context().Value(subjectContextKey).(string); ok {
		return val
	}
	return ""
}
