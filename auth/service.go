package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/fearlessjoy/fridaynz/apperrors"
	"github.com/fearlessjoy/fridaynz/docstore"
	"github.com/fearlessjoy/fridaynz/logging"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const identitiesCollection = "identities"

// Sign-in attempts per email allowed inside the throttle window before the
// caller is told to back off.
const (
	maxFailedAttempts = 5
	throttleWindow    = time.Minute
)

type identityRecord struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	DisplayName  string    `bson:"displayName,omitempty"`
	CreatedAt    time.Time `bson:"createdAt"`
}

// Service implements Client against the identities collection.
type Service struct {
	store     docstore.Store
	jwt       *JWTService
	blacklist Blacklist

	mu           sync.Mutex
	current      *Identity
	currentToken string
	listeners    map[int]func(*Identity)
	nextListener int
	failures     map[string][]time.Time
}

func NewService(store docstore.Store, jwt *JWTService, blacklist Blacklist) *Service {
	if blacklist == nil {
		blacklist = NewMemoryBlacklist()
	}
	return &Service{
		store:     store,
		jwt:       jwt,
		blacklist: blacklist,
		listeners: make(map[int]func(*Identity)),
		failures:  make(map[string][]time.Time),
	}
}

func (s *Service) SignUp(ctx context.Context, email, password string) (Identity, error) {
	email = strings.ToLower(html.EscapeString(strings.TrimSpace(email)))
	if email == "" || password == "" {
		return Identity{}, fmt.Errorf("email and password are required")
	}

	var existing []identityRecord
	filters := []docstore.Filter{{Field: "email", Op: "==", Value: email}}
	if err := s.store.Query(ctx, identitiesCollection, filters, nil, &existing); err != nil {
		return Identity{}, fmt.Errorf("failed to check existing identity: %v", err)
	}
	if len(existing) > 0 {
		return Identity{}, fmt.Errorf("identity with email already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to hash password: %v", err)
	}

	record := identityRecord{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hashed),
		DisplayName:  displayNameFromEmail(email),
		CreatedAt:    time.Now(),
	}
	if err := s.store.Set(ctx, identitiesCollection, record.ID, record); err != nil {
		return Identity{}, fmt.Errorf("failed to save identity: %v", err)
	}

	identity := Identity{ID: record.ID, Email: record.Email, DisplayName: record.DisplayName}
	s.setCurrent(&identity, "")
	logging.Logger.Infof("Event ID: IDENTITY_CREATED, Description: Identity created for %s", email)
	return identity, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Identity, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if s.throttled(email) {
		return Identity{}, "", apperrors.ErrRateLimited
	}

	var records []identityRecord
	filters := []docstore.Filter{{Field: "email", Op: "==", Value: email}}
	if err := s.store.Query(ctx, identitiesCollection, filters, nil, &records); err != nil {
		if apperrors.IsNetwork(err) {
			return Identity{}, "", fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
		}
		return Identity{}, "", fmt.Errorf("failed to look up identity: %v", err)
	}
	if len(records) == 0 {
		s.recordFailure(email)
		return Identity{}, "", apperrors.ErrInvalidCredentials
	}

	record := records[0]
	if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(email)
		return Identity{}, "", apperrors.ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(record.ID, record.Email)
	if err != nil {
		return Identity{}, "", fmt.Errorf("failed to generate token: %v", err)
	}

	identity := Identity{ID: record.ID, Email: record.Email, DisplayName: record.DisplayName}
	s.clearFailures(email)
	s.setCurrent(&identity, token)
	logging.Logger.Infof("Event ID: SIGN_IN, Description: Identity %s signed in", record.ID)
	return identity, token, nil
}

func (s *Service) SignOut(ctx context.Context) error {
	s.mu.Lock()
	token := s.currentToken
	s.mu.Unlock()

	if token != "" {
		if err := s.blacklist.Revoke(ctx, token, 2*time.Hour); err != nil {
			logging.Logger.Warnf("Event ID: TOKEN_REVOKE_FAILED, Description: Failed to blacklist token on sign-out: %v", err)
		}
	}
	s.setCurrent(nil, "")
	logging.Logger.Info("Event ID: SIGN_OUT, Description: Identity signed out")
	return nil
}

// ValidateToken checks signature, expiry and revocation.
func (s *Service) ValidateToken(ctx context.Context, tokenStr string) (*Claims, error) {
	revoked, err := s.blacklist.IsRevoked(ctx, tokenStr)
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %v", err)
	}
	if revoked {
		return nil, errors.New("token has been revoked")
	}
	return s.jwt.ValidateToken(tokenStr)
}

func (s *Service) CurrentIdentity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

// OnAuthStateChange registers a listener and invokes it immediately with the
// current state, so late subscribers observe the initialized session.
func (s *Service) OnAuthStateChange(fn func(*Identity)) func() {
	s.mu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners[id] = fn
	current := s.current
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// DeleteIdentity removes the identity record. Privileged; only reachable
// through the relay's admin-gated endpoint.
func (s *Service) DeleteIdentity(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, identitiesCollection, userID); err != nil {
		return fmt.Errorf("failed to delete identity %s: %w", userID, err)
	}

	s.mu.Lock()
	clearCurrent := s.current != nil && s.current.ID == userID
	s.mu.Unlock()
	if clearCurrent {
		s.setCurrent(nil, "")
	}
	logging.Logger.Infof("Event ID: IDENTITY_DELETED, Description: Identity %s deleted", userID)
	return nil
}

func (s *Service) setCurrent(identity *Identity, token string) {
	s.mu.Lock()
	s.current = identity
	s.currentToken = token
	listeners := make([]func(*Identity), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(identity)
	}
}

func (s *Service) throttled(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-throttleWindow)
	recent := s.failures[email][:0]
	for _, at := range s.failures[email] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	s.failures[email] = recent
	return len(recent) >= maxFailedAttempts
}

func (s *Service) recordFailure(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[email] = append(s.failures[email], time.Now())
}

func (s *Service) clearFailures(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, email)
}

func displayNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	words := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' })
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
