package captcha

import (
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	defaultSessionTTL      = 10 * time.Minute
	defaultCleanupInterval = time.Minute
)

var (
	// ErrSessionNotFound indicates an unknown, expired or consumed session id.
	ErrSessionNotFound = errors.New("captcha: session not found")
)

// VerifierFactory builds a Verifier reporting to onVerified.
type VerifierFactory func(onVerified VerifiedFunc) (*Verifier, error)

// SessionStoreConfig configures a SessionStore.
type SessionStoreConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	NewVerifier     VerifierFactory
	NewID           func() (string, error)
	Logger          *zap.Logger
}

// Snapshot is a read-only view of a session after an operation.
type Snapshot struct {
	SessionID string
	State     State
	Verified  bool
	Image     image.Image
}

// SessionStore keeps one Verifier per form session and expires idle sessions.
type SessionStore struct {
	cache       *gocache.Cache
	newVerifier VerifierFactory
	newID       func() (string, error)
	logger      *zap.Logger
}

type session struct {
	mu       sync.Mutex
	id       string
	verifier *Verifier
	verified bool
	consumed bool
}

// NewSessionStore constructs a SessionStore with defaults for unset fields.
func NewSessionStore(cfg SessionStoreConfig) *SessionStore {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = defaultCleanupInterval
	}
	factory := cfg.NewVerifier
	if factory == nil {
		factory = func(onVerified VerifiedFunc) (*Verifier, error) {
			return NewVerifier(VerifierConfig{OnVerified: onVerified})
		}
	}
	newID := cfg.NewID
	if newID == nil {
		newID = newSessionID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		cache:       gocache.New(ttl, cleanup),
		newVerifier: factory,
		newID:       newID,
		logger:      logger,
	}
}

// Open creates a session and shows its first challenge.
func (s *SessionStore) Open() (Snapshot, error) {
	id, err := s.newID()
	if err != nil {
		return Snapshot{}, err
	}
	entry := &session{id: id}
	verifier, err := s.newVerifier(func(verified bool) {
		entry.verified = verified
	})
	if err != nil {
		return Snapshot{}, err
	}
	entry.verifier = verifier

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := verifier.BeginChallenge(); err != nil {
		return Snapshot{}, err
	}
	s.cache.Set(id, entry, gocache.DefaultExpiration)
	s.logger.Debug("captcha session opened", zap.String("session_id", id))
	return entry.snapshot(), nil
}

// Get returns the current view of a session.
func (s *SessionStore) Get(id string) (Snapshot, error) {
	return s.withSession(id, func(entry *session) error { return nil })
}

// Refresh shows a new challenge for the session.
func (s *SessionStore) Refresh(id string) (Snapshot, error) {
	return s.withSession(id, func(entry *session) error {
		return entry.verifier.Refresh()
	})
}

// Attempt evaluates typed input against the session's challenge.
func (s *SessionStore) Attempt(id, input string) (Snapshot, error) {
	return s.withSession(id, func(entry *session) error {
		entry.verifier.SetInput(input)
		return nil
	})
}

// Begin opts an unstarted session back in to a fresh challenge.
func (s *SessionStore) Begin(id string) (Snapshot, error) {
	return s.withSession(id, func(entry *session) error {
		return entry.verifier.BeginChallenge()
	})
}

// Reset returns a verified session to unstarted.
func (s *SessionStore) Reset(id string) (Snapshot, error) {
	return s.withSession(id, func(entry *session) error {
		entry.verifier.Reset()
		return nil
	})
}

// Consume reports whether the session is verified and, if so, removes it so
// the verification gates a single submission.
func (s *SessionStore) Consume(id string) bool {
	_, ok := s.Claim(id)
	return ok
}

// Claim removes a verified session like Consume and returns a release func
// that puts the session back, still verified, for a submission that failed
// after the claim.
func (s *SessionStore) Claim(id string) (func(), bool) {
	entry, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.consumed || !entry.verified {
		return nil, false
	}
	entry.consumed = true
	s.cache.Delete(id)
	s.logger.Debug("captcha session consumed", zap.String("session_id", id))

	var once sync.Once
	release := func() {
		once.Do(func() {
			entry.mu.Lock()
			defer entry.mu.Unlock()
			entry.consumed = false
			s.cache.Set(id, entry, gocache.DefaultExpiration)
			s.logger.Debug("captcha session released", zap.String("session_id", id))
		})
	}
	return release, true
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	return s.cache.ItemCount()
}

func (s *SessionStore) withSession(id string, apply func(*session) error) (Snapshot, error) {
	entry, ok := s.lookup(id)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.consumed {
		return Snapshot{}, ErrSessionNotFound
	}
	if err := apply(entry); err != nil {
		return Snapshot{}, err
	}
	s.cache.Set(id, entry, gocache.DefaultExpiration)
	return entry.snapshot(), nil
}

func (s *SessionStore) lookup(id string) (*session, bool) {
	if id == "" {
		return nil, false
	}
	value, found := s.cache.Get(id)
	if !found {
		return nil, false
	}
	entry, ok := value.(*session)
	return entry, ok
}

func (e *session) snapshot() Snapshot {
	return Snapshot{
		SessionID: e.id,
		State:     e.verifier.State(),
		Verified:  e.verified,
		Image:     e.verifier.Image(),
	}
}

func newSessionID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
