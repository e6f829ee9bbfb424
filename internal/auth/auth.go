// Package auth is the authenticator collaborator: it turns raw request
// credentials into a verified user identity, and owns user registration
// and login. Identity resolution is fully decoupled from authorization;
// downstream code only ever sees a user ID.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fundpool/fundpool/internal/interfaces"
	"github.com/fundpool/fundpool/internal/models"
)

const minPasswordLen = 8

// Claims are the JWT claims carried by issued tokens.
type Claims struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	jwt.StandardClaims
}

// Authenticator registers users, verifies credentials and issues/validates
// signed tokens.
type Authenticator struct {
	store    interfaces.Store
	secret   []byte
	tokenTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthenticator(store interfaces.Store, secret []byte, tokenTTL time.Duration, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Authenticator{
		store:    store,
		secret:   secret,
		tokenTTL: tokenTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Register creates a new user. Usernames are unique; duplicates fail with
// ErrConflict.
func (a *Authenticator) Register(ctx context.Context, username, password string) (models.User, error) {
	if username == "" {
		return models.User{}, &models.ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if len(password) < minPasswordLen {
		return models.User{}, &models.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", minPasswordLen)}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		return models.User{}, fmt.Errorf("register user: %w", err)
	}
	a.logger.Info("user registered", "user_id", user.ID, "username", username)
	return user, nil
}

// Login verifies credentials and returns a signed token. Unknown usernames
// and wrong passwords are indistinguishable to the caller.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, error) {
	user, err := a.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", models.ErrUnauthenticated
		}
		return "", fmt.Errorf("login: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", models.ErrUnauthenticated
	}
	claims := &Claims{
		Username: user.Username,
		UserID:   user.ID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: a.now().Add(a.tokenTTL).Unix(),
			IssuedAt:  a.now().Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a bearer token and returns the claims it carries. Any
// failure is ErrUnauthenticated; callers learn nothing about why.
func (a *Authenticator) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, models.ErrUnauthenticated
	}
	return claims, nil
}

// Middleware wraps a handler that needs a verified actor, extracting the
// bearer token from the Authorization header.
func (a *Authenticator) Middleware(next func(w http.ResponseWriter, r *http.Request, actorID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			writeUnauthenticated(w)
			return
		}
		claims, err := a.Verify(raw)
		if err != nil {
			writeUnauthenticated(w)
			return
		}
		next(w, r, claims.UserID)
	}
}

func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"kind":"unauthenticated","message":"authentication required"}}`))
}
