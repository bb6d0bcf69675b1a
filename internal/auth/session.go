package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/desertthunder/reel/internal/storage"
)

// SessionKey is the storage key holding the signed-in user.
const SessionKey = "user"

// Sessions manages the local session and implements [Guard].
type Sessions struct {
	st     storage.Storage
	logger *log.Logger

	mu      sync.RWMutex
	current *models.Session
	stop    func()
}

var _ Guard = (*Sessions)(nil)

// Option configures [Sessions].
type Option func(*Sessions)

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *log.Logger) Option {
	return func(s *Sessions) { s.logger = l }
}

// NewSessions creates a session manager over st. Call [Sessions.Open] before use.
func NewSessions(st storage.Storage, opts ...Option) *Sessions {
	s := &Sessions{st: st, logger: shared.DiscardLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("key", SessionKey)
	return s
}

// Open follows changes made by other processes and then loads the persisted session.
func (s *Sessions) Open(ctx context.Context) error {
	stop, err := storage.Follow(ctx, s.st, storage.MatchKey(SessionKey), func(storage.Event) {
		s.reload()
	})
	if err != nil {
		return fmt.Errorf("failed to watch session: %w", err)
	}

	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()

	s.reload()
	return nil
}

// Close stops following changes.
func (s *Sessions) Close() error {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	return nil
}

// RequireSession implements [Guard].
func (s *Sessions) RequireSession() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Current returns a copy of the signed-in user.
func (s *Sessions) Current() (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	session := *s.current
	return &session, true
}

// Login signs in as email.
func (s *Sessions) Login(email string) (*models.Session, error) {
	return s.start(email)
}

// Signup creates the local account for email and signs in. Accounts are not stored
// separately, so this behaves like [Sessions.Login].
func (s *Sessions) Signup(email string) (*models.Session, error) {
	return s.start(email)
}

// Logout clears the session. Logging out twice is not an error.
func (s *Sessions) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	if err := s.st.Remove(SessionKey); err != nil {
		s.logger.Warn("failed to clear session", "error", err)
		return fmt.Errorf("%w: %v", shared.ErrPersistenceWriteFailed, err)
	}
	return nil
}

// UpdateProfile changes the display name and avatar. Empty values keep the current ones.
func (s *Sessions) UpdateProfile(name, avatarURL string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, shared.ErrUnauthenticated
	}

	updated := *s.current
	if name = strings.TrimSpace(name); name != "" {
		updated.DisplayName = name
	}
	if avatarURL = strings.TrimSpace(avatarURL); avatarURL != "" {
		updated.AvatarURL = avatarURL
	}

	s.current = &updated
	if err := s.persist(updated); err != nil {
		return nil, err
	}
	session := updated
	return &session, nil
}

// NewSession builds the session record for email.
func NewSession(email string) (models.Session, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return models.Session{}, fmt.Errorf("%w: %q", shared.ErrInvalidEmail, email)
	}

	local, _, _ := strings.Cut(addr.Address, "@")
	return models.Session{
		DisplayName: local,
		Email:       addr.Address,
		AvatarURL:   models.DefaultAvatarURL(addr.Address),
	}, nil
}

func (s *Sessions) start(email string) (*models.Session, error) {
	session, err := NewSession(email)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &session
	if err := s.persist(session); err != nil {
		return nil, err
	}
	out := session
	return &out, nil
}

// persist must be called with s.mu held.
func (s *Sessions) persist(session models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.st.Set(SessionKey, string(data)); err != nil {
		s.logger.Warn("failed to persist session", "error", err)
		return fmt.Errorf("%w: %v", shared.ErrPersistenceWriteFailed, err)
	}
	return nil
}

// reload replaces the in-memory session with the stored one.
func (s *Sessions) reload() {
	value, ok, err := s.st.Get(SessionKey)
	if err != nil && !errors.Is(err, shared.ErrPersistenceReadCorrupt) {
		s.logger.Warn("failed to read session", "error", err)
		return
	}

	var current *models.Session
	if ok && value != "" && value != "null" {
		var session models.Session
		if err := json.Unmarshal([]byte(value), &session); err != nil || session.Email == "" {
			s.logger.Warn("ignoring corrupt session", "error", shared.ErrPersistenceReadCorrupt)
		} else {
			current = &session
		}
	}

	s.mu.Lock()
	s.current = current
	s.mu.Unlock()
}
