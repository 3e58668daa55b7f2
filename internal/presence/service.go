package presence

import (
	"errors"
	"log"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"taptile/internal/models"
	"taptile/internal/store"

	"github.com/google/uuid"
)

var (
	ErrUsernameRequired = errors.New("username is required")
	ErrUsernameTooShort = errors.New("username must be at least 2 characters")
	ErrUsernameTooLong  = errors.New("username must be at most 20 characters")
	ErrUsernameInvalid  = errors.New("username can only contain letters, numbers, spaces, and underscores")
)

// colors is the fixed palette assigned to new identities. Picks are
// uniform-random with no collision avoidance.
var colors = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A",
	"#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E2",
	"#F8B739", "#52B788", "#E63946", "#457B9D",
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_ ]+$`)

// Service is the presence registry: it binds connections to
// bounded-lifetime participant identities.
type Service struct {
	sessions *store.Sessions
	ttl      time.Duration
	now      func() time.Time
}

// NewService creates a presence registry over the given session store
func NewService(sessions *store.Sessions, ttl time.Duration) *Service {
	return &Service{
		sessions: sessions,
		ttl:      ttl,
		now:      time.Now,
	}
}

// ValidateUsername checks a raw display name and returns its trimmed form
func ValidateUsername(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return "", ErrUsernameRequired
	case len(trimmed) < 2:
		return "", ErrUsernameTooShort
	case len(trimmed) > 20:
		return "", ErrUsernameTooLong
	case !usernamePattern.MatchString(trimmed):
		return "", ErrUsernameInvalid
	}
	return trimmed, nil
}

// Authenticate validates the display name, mints a new identity and
// stores it with a bounded lifetime. A validation failure creates no
// session.
func (s *Service) Authenticate(rawUsername, connID string) (models.Session, error) {
	username, err := ValidateUsername(rawUsername)
	if err != nil {
		return models.Session{}, err
	}

	now := s.now()
	session := models.Session{
		UserID:     uuid.New().String(),
		Username:   username,
		Color:      colors[rand.Intn(len(colors))],
		ConnID:     connID,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	s.sessions.Put(session, s.ttl)
	log.Printf("presence: session created %s (%s)", session.UserID, session.Username)
	return session, nil
}

// Lookup returns the stored session for a participant
func (s *Service) Lookup(userID string) (models.Session, bool) {
	return s.sessions.Get(userID)
}

// Rebind points an existing identity at a new connection, refreshing its
// lifetime
func (s *Service) Rebind(userID, newConnID string) (models.Session, bool) {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return models.Session{}, false
	}
	session.ConnID = newConnID
	session.LastSeenAt = s.now()
	s.sessions.Put(session, s.ttl)
	log.Printf("presence: connection rebound for %s", userID)
	return session, true
}

// Release deletes the session record; releasing an unknown id is a no-op
func (s *Service) Release(userID string) {
	s.sessions.Delete(userID)
	log.Printf("presence: session released %s", userID)
}
