package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bazaar/internal/models"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
)

const currentSessionKey = "current"

var (
	ErrNoSession      = errors.New("no session, log in with a token")
	ErrSessionExpired = errors.New("session expired")
	ErrInvalidToken   = errors.New("invalid token")
)

// Claims are the parts of the backend's access token the client reads.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken extracts the user id and expiry from a bearer token. The
// signature is not checked: only the backend holds the key, and it
// rejects forged tokens itself.
func ParseToken(token string) (models.Session, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return models.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return models.Session{}, fmt.Errorf("%w: no user id claim", ErrInvalidToken)
	}

	sess := models.Session{UserID: userID, Token: token}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

type Store interface {
	SaveSession(s models.Session) error
	// LoadSession returns models.ErrNotFound when nothing is stored.
	LoadSession() (models.Session, error)
	ClearSession() error
}

// Service keeps the current session in memory and in the store.
type Service struct {
	store    Store
	sessions geche.Geche[string, models.Session]
	now      func() time.Time
	log      *slog.Logger
}

func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		sessions: geche.NewMapCache[string, models.Session](),
		now:      time.Now,
		log:      log,
	}
}

// Login adopts token as the session credential and persists it.
func (s *Service) Login(token string) (models.Session, error) {
	sess, err := ParseToken(token)
	if err != nil {
		return models.Session{}, err
	}
	if !sess.Valid(s.now()) {
		return models.Session{}, fmt.Errorf("%w at %s", ErrSessionExpired, sess.ExpiresAt.Format(time.RFC3339))
	}

	if err := s.store.SaveSession(sess); err != nil {
		return models.Session{}, fmt.Errorf("failed to save session: %w", err)
	}
	s.sessions.Set(currentSessionKey, sess)

	s.log.Info("logged in", "user_id", sess.UserID)
	return sess, nil
}

// Current returns the active session, loading it from the store on
// first use.
func (s *Service) Current() (models.Session, error) {
	sess, err := s.sessions.Get(currentSessionKey)
	if err != nil {
		sess, err = s.store.LoadSession()
		if errors.Is(err, models.ErrNotFound) {
			return models.Session{}, ErrNoSession
		}
		if err != nil {
			return models.Session{}, fmt.Errorf("failed to load session: %w", err)
		}
		s.sessions.Set(currentSessionKey, sess)
	}

	if !sess.Valid(s.now()) {
		return models.Session{}, ErrSessionExpired
	}
	return sess, nil
}

// Token returns the bearer token of the active session.
func (s *Service) Token() (string, error) {
	sess, err := s.Current()
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

func (s *Service) Logout() error {
	_ = s.sessions.Del(currentSessionKey)
	if err := s.store.ClearSession(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.log.Info("logged out")
	return nil
}
